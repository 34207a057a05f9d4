package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimelinePoint is the representative frame for one whole second of audio.
type TimelinePoint struct {
	Timestamp string        `json:"timestamp"` // wall-clock "HH:MM:SS"
	Features  FeatureVector `json:"features"`
}

// Timeline 自定义类型用于 GORM JSON 字段的自动扫描
type Timeline []TimelinePoint

// Scan 实现 sql.Scanner 接口
func (t *Timeline) Scan(value interface{}) error {
	if value == nil {
		*t = Timeline{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported features_timeline column type %T", value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*t = Timeline{}
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// Value implements driver.Valuer. An empty timeline is stored as "[]", never NULL.
func (t Timeline) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// TimelineRecord is one half-hour slot of one device.
// Primary key: (device_id, date, time_block).
type TimelineRecord struct {
	DeviceID         string    `json:"device_id" gorm:"primaryKey;size:64;not null"`
	Date             string    `json:"date" gorm:"primaryKey;size:10;not null"`
	TimeBlock        string    `json:"time_block" gorm:"primaryKey;size:5;not null"`
	Filename         string    `json:"filename" gorm:"size:255;not null"`
	DurationSeconds  int       `json:"duration_seconds" gorm:"not null"`
	FeaturesTimeline Timeline  `json:"features_timeline" gorm:"type:json;not null"`
	ProcessingTime   float64   `json:"processing_time" gorm:"not null"`
	Error            *string   `json:"error"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName 指定表名
func (TimelineRecord) TableName() string {
	return "emotion_opensmile"
}

// Failed reports whether the record captures an extraction failure.
func (r *TimelineRecord) Failed() bool {
	return r.Error != nil
}
