package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"smileslot/config"
	"smileslot/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioAudioOnly bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO 存储桶查看",
	Long:  `列出 MinIO 存储桶中某个前缀下的对象，或显示统计信息。`,
	Example: `  # 某设备一天的录音
  smileslot minio -p files/dev-A/2025-07-19/ --audio

  # 统计信息
  smileslot minio -p files/ -s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		objects, err := store.List(ctx, minioPrefix)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if minioStats {
			s := storage.Stats(objects)
			fmt.Fprintf(out, "bucket=%s prefix=%q objects=%d size=%d bytes audio=%d\n",
				cfg.MinioBucket, minioPrefix, s.TotalObjects, s.TotalSize, len(storage.AudioKeys(objects)))
			return nil
		}

		rows := make([][]string, 0, len(objects))
		for _, o := range objects {
			if minioAudioOnly && !storage.IsAudio(o.Key) {
				continue
			}
			rows = append(rows, []string{o.Key, strconv.FormatInt(o.Size, 10), o.LastModified.Format(time.RFC3339)})
		}
		fmt.Fprintln(out, renderTable([]string{"Key", "Size", "Last Modified"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "files/", "按前缀过滤")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示统计信息")
	minioCmd.Flags().BoolVar(&minioAudioOnly, "audio", false, "只列出 .wav 文件")
}
