package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smileslot/cache"
	"smileslot/config"

	"github.com/spf13/cobra"
)

var redisBatchID string

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis 连接测试",
	Long:  `测试 Redis 连接；指定 --batch 时输出缓存的批处理结果。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		batches := cache.NewBatchCache(cache.RedisClient, cfg.BatchCacheTTL)
		if err := batches.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Redis连接成功！")

		if redisBatchID == "" {
			return nil
		}
		result, err := batches.Get(ctx, redisBatchID)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("batch %s not cached", redisBatchID)
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().StringVarP(&redisBatchID, "batch", "b", "", "输出指定批次的缓存结果")
}
