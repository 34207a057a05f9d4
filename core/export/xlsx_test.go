package export

import (
	"bytes"
	"testing"

	"smileslot/model"

	"github.com/xuri/excelize/v2"
)

func TestWriteDay(t *testing.T) {
	msg := "object not found"
	recs := []*model.TimelineRecord{
		{
			DeviceID: "dev-A", Date: "2025-07-19", TimeBlock: "14-00", Filename: "audio.wav", DurationSeconds: 2,
			FeaturesTimeline: model.Timeline{
				{Timestamp: "14:00:00", Features: model.FeatureVector{Loudness: 0.25}},
				{Timestamp: "14:00:01", Features: model.FeatureVector{Loudness: 0.5}},
			},
		},
		{DeviceID: "dev-A", Date: "2025-07-19", TimeBlock: "14-30", Filename: "audio.wav", Error: &msg},
	}

	var buf bytes.Buffer
	if err := WriteDay(&buf, recs); err != nil {
		t.Fatalf("WriteDay: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(SummarySheet)
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(summary) != 3 || summary[2][2] != "14-30" || summary[2][7] != msg {
		t.Fatalf("unexpected summary %v", summary)
	}

	rows, err := f.GetRows(TimelineSheet)
	if err != nil {
		t.Fatalf("timeline rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 points, got %d rows", len(rows))
	}
	if len(rows[0]) != len(model.FeatureNames)+2 || rows[0][2] != "Loudness_sma3" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[2][1] != "14:00:01" || rows[2][2] != "0.5" {
		t.Fatalf("unexpected point row %v", rows[2])
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("dev-A", "2025-07-19"); got != "smileslot_dev-A_2025-07-19.xlsx" {
		t.Fatalf("FileName = %q", got)
	}
}
