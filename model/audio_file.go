package model

import "time"

// Processing status values used by the file-tracking table.
const (
	ProcessingStatusPending   = "pending"
	ProcessingStatusCompleted = "completed"
)

// AudioFile is the external file-tracking row for one uploaded recording.
// Each downstream analyser owns one *_status column.
type AudioFile struct {
	FilePath               string    `json:"file_path" gorm:"primaryKey;size:512"`
	DeviceID               string    `json:"device_id" gorm:"size:64;index"`
	TranscriptionsStatus   string    `json:"transcriptions_status" gorm:"size:20;default:'pending'"`
	BehaviorFeaturesStatus string    `json:"behavior_features_status" gorm:"size:20;default:'pending'"`
	EmotionFeaturesStatus  string    `json:"emotion_features_status" gorm:"size:20;default:'pending'"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName 指定表名
func (AudioFile) TableName() string {
	return "audio_files"
}
