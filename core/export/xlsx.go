// Package export renders stored slot timelines as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"smileslot/model"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet  = "Summary"
	TimelineSheet = "Timeline"
)

var summaryHeader = []interface{}{
	"device_id", "date", "time_block", "filename", "duration_seconds",
	"timeline_points", "processing_time", "error", "updated_at",
}

// WriteDay writes one device-day as a workbook: a summary row per slot and
// one timeline row per second, descriptors in extractor column order.
func WriteDay(w io.Writer, recs []*model.TimelineRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, rec := range recs {
		errText := ""
		if rec.Error != nil {
			errText = *rec.Error
		}
		row := []interface{}{
			rec.DeviceID, rec.Date, rec.TimeBlock, rec.Filename, rec.DurationSeconds,
			len(rec.FeaturesTimeline), rec.ProcessingTime, errText, rec.UpdatedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(TimelineSheet); err != nil {
		return fmt.Errorf("create timeline sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(TimelineSheet)
	if err != nil {
		return fmt.Errorf("open timeline stream: %w", err)
	}
	header := make([]interface{}, 0, len(model.FeatureNames)+2)
	header = append(header, "time_block", "timestamp")
	for _, name := range model.FeatureNames {
		header = append(header, name)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	rowNum := 2
	for _, rec := range recs {
		for _, p := range rec.FeaturesTimeline {
			row := make([]interface{}, 0, len(header))
			row = append(row, rec.TimeBlock, p.Timestamp)
			for _, v := range p.Features.Values() {
				row = append(row, v)
			}
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, row); err != nil {
				return fmt.Errorf("write timeline row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush timeline: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

// FileName is the download name for a device-day workbook.
func FileName(deviceID, date string) string {
	return fmt.Sprintf("smileslot_%s_%s.xlsx", deviceID, date)
}
