package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"smileslot/config"
	"smileslot/core/slotkey"
	"smileslot/core/watch"
	"smileslot/logger"
	"smileslot/model"
	"smileslot/storage"

	"github.com/spf13/cobra"
)

var watchSettle = watch.DefaultSettle

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "监听本地目录，新录音写完后自动处理",
	Long: `监听 LOCAL_AUDIO_ROOT 下的 files/ 目录树。新的 .wav 文件在 --settle 时间内
不再变化后登记到 audio_files 并作为单文件批次处理。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := storage.NewLocalStore(cfg.LocalAudioRoot)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := watch.New(store, watchSettle, func(ctx context.Context, path string) {
			key, err := slotkey.Parse(path)
			if err != nil {
				logger.Warn("ignoring recording outside the slot layout",
					logger.String("path", path),
					logger.ErrorField(err))
				return
			}
			if err := a.status.Track(ctx, path, key.DeviceID); err != nil {
				logger.Warn("failed to track recording", logger.String("path", path), logger.ErrorField(err))
			}
			if _, err := a.orch.Process(ctx, model.BatchRequest{
				FilePaths:  []string{path},
				FeatureSet: cfg.FeatureSet,
			}); err != nil {
				logger.Error("recording not processed", logger.String("path", path), logger.ErrorField(err))
			}
		})
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watch.DefaultSettle, "文件无变化多久后开始处理")
}
