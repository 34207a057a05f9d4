package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smileslot",
	Short: "smileslot turns half-hour recordings into per-second acoustic feature timelines.",
	Long: `smileslot 读取 files/{device_id}/{YYYY-MM-DD}/{HH-MM}/ 下的录音，
提取 eGeMAPSv02 特征，按秒聚合后写入时间线存储（同一时间槽重复处理会覆盖）。`,
	SilenceUsage: true,
	// 不带子命令时启动 HTTP 服务
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
