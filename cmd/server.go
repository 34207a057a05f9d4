package cmd

import (
	"context"

	"smileslot/cache"
	"smileslot/config"
	"smileslot/logger"
	"smileslot/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 HTTP 服务",
	Long:  `启动 HTTP 服务，提供批处理、按天处理、时间线查询、xlsx 导出和 websocket 进度推送。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		a, err := newApp(context.Background(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		hub := server.NewProgressHub()
		go hub.Run()
		defer hub.Stop()
		a.orch.AddObserver(hub)

		deps := server.Deps{
			Orchestrator: a.orch,
			Lister:       a.store,
			Slots:        a.slots,
			Hub:          hub,
		}

		// batch lookups need Redis; the server runs without it
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("batch cache disabled", logger.ErrorField(err))
		} else {
			defer cache.CloseRedis()
			batches := cache.NewBatchCache(cache.RedisClient, cfg.BatchCacheTTL)
			a.orch.AddObserver(batches)
			deps.Batches = batches
		}

		return server.Run(cfg.HTTPAddr, server.NewRouter(deps))
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
