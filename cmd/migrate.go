package cmd

import (
	"fmt"

	"smileslot/config"
	"smileslot/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据表",
	Long:  `创建或更新时间线表 emotion_opensmile 和文件状态表 audio_files。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		if err := db.Connect(cfg); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close(db.GormDB)

		if err := db.Migrate(db.GormDB); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "数据表已就绪 (%s)\n", cfg.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
