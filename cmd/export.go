package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"smileslot/config"
	"smileslot/core/export"
	"smileslot/core/slotkey"
	"smileslot/db"
	"smileslot/repository"

	"github.com/spf13/cobra"
)

var (
	exportDevice string
	exportDate   string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出某设备一天的时间线为 xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDevice == "" {
			return fmt.Errorf("--device is required")
		}
		if _, err := slotkey.ParseDate(exportDate); err != nil {
			return &slotkey.InvalidDateError{Path: "--date", Value: exportDate}
		}

		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		gdb, err := db.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close(gdb)

		recs, err := repository.NewGormSlotRepository(gdb).ListByDate(context.Background(), exportDevice, exportDate)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no slots recorded for %s on %s", exportDevice, exportDate)
		}

		path := filepath.Join(exportDir, export.FileName(exportDevice, exportDate))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := export.WriteDay(f, recs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已导出 %d 个时间槽到 %s\n", len(recs), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportDevice, "device", "d", "", "设备 ID")
	exportCmd.Flags().StringVar(&exportDate, "date", "", "日期 YYYY-MM-DD")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "输出目录")
}
