package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"smileslot/config"
	"smileslot/model"

	"github.com/spf13/cobra"
)

var (
	processFeatureSet string
	processRaw        bool
	processDevice     string
	processDate       string
)

var processCmd = &cobra.Command{
	Use:   "process [file_path...]",
	Short: "处理一批录音并写入时间线",
	Long: `按存储路径处理录音，或用 --device/--date 处理某设备一天内的全部录音。
任一文件未完成时以非零状态退出。`,
	Example: `  smileslot process files/dev-A/2025-07-19/14-30/audio.wav
  smileslot process --device dev-A --date 2025-07-19`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if processFeatureSet == "" {
			processFeatureSet = cfg.FeatureSet
		}

		var result *model.BatchResult
		if processDevice != "" || processDate != "" {
			result, err = a.orch.ProcessDay(ctx, a.store, model.VaultDataRequest{
				DeviceID:           processDevice,
				Date:               processDate,
				FeatureSet:         processFeatureSet,
				IncludeRawFeatures: processRaw,
			})
		} else {
			result, err = a.orch.Process(ctx, model.BatchRequest{
				FilePaths:          args,
				FeatureSet:         processFeatureSet,
				IncludeRawFeatures: processRaw,
			})
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), formatBatch(result))
		if !result.Success {
			return fmt.Errorf("batch %s finished with failures", result.BatchID)
		}
		return nil
	},
}

func formatBatch(result *model.BatchResult) string {
	headers := []string{"File", "State", "Slot", "Seconds", "Points", "Attempts", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(result.Results))
	for _, r := range result.Results {
		msg := ""
		if r.Error != nil {
			msg = *r.Error
		} else if r.StatusError != nil {
			msg = "status: " + *r.StatusError
		}
		rows = append(rows, []string{
			r.FilePath,
			string(r.State),
			r.TimeBlock,
			strconv.Itoa(r.DurationSeconds),
			strconv.Itoa(r.TimelinePoints),
			strconv.Itoa(r.Attempts),
			msg,
		})
	}
	return fmt.Sprintf("%s\nbatch %s: success=%t processed=%d saved=%v status_failures=%d total=%.2fs",
		renderTable(headers, rows, aligns),
		result.BatchID, result.Success, result.ProcessedFiles, result.SavedKeys,
		result.StatusFailures, result.TotalProcessingTime)
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&processFeatureSet, "feature-set", "f", "", "特征集（默认取 FEATURE_SET）")
	processCmd.Flags().BoolVar(&processRaw, "raw", false, "结果中包含逐秒特征")
	processCmd.Flags().StringVarP(&processDevice, "device", "d", "", "设备 ID（与 --date 一起使用）")
	processCmd.Flags().StringVar(&processDate, "date", "", "日期 YYYY-MM-DD（与 --device 一起使用）")
}
