package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"smileslot/db"
	"smileslot/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrFileNotTracked is returned when the file-tracking table has no row for the path.
var ErrFileNotTracked = errors.New("file not tracked")

// ErrUnknownStatusField is returned when audio_files has no such column.
var ErrUnknownStatusField = errors.New("audio_files has no such status column")

// DefaultStatusField is the column this pipeline owns in audio_files.
const DefaultStatusField = "emotion_features_status"

var statusFieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// InvalidFieldError is returned for a status column name that is not a plain identifier.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid status field %q", e.Field)
}

// StatusRepository updates processing-status columns of the file-tracking table.
type StatusRepository interface {
	// MarkCompleted sets field to completed for path. Marking twice is a no-op.
	MarkCompleted(ctx context.Context, path, field string) error
	// Track registers path as pending if it is not tracked yet.
	Track(ctx context.Context, path, deviceID string) error
	Status(ctx context.Context, path, field string) (string, error)
}

type gormStatusRepository struct {
	db *gorm.DB
}

// NewGormStatusRepository 创建 GORM 状态仓库
func NewGormStatusRepository(db *gorm.DB) StatusRepository {
	return &gormStatusRepository{db: db}
}

// ValidateStatusField checks that field is safe to use as a column name.
func ValidateStatusField(field string) error {
	if !statusFieldPattern.MatchString(field) {
		return &InvalidFieldError{Field: field}
	}
	return nil
}

// CheckStatusField validates field and checks that audio_files has the column.
func CheckStatusField(gdb *gorm.DB, field string) error {
	if err := ValidateStatusField(field); err != nil {
		return err
	}
	if !gdb.Migrator().HasColumn(&model.AudioFile{}, field) {
		return fmt.Errorf("%w: %s", ErrUnknownStatusField, field)
	}
	return nil
}

func (r *gormStatusRepository) MarkCompleted(ctx context.Context, path, field string) error {
	if err := ValidateStatusField(field); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.AudioFile{}).
		Where("file_path = ?", path).
		Update(field, model.ProcessingStatusCompleted)
	if res.Error != nil {
		return db.Classify("mark completed", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports 0 affected rows when nothing changed.
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.AudioFile{}).Where("file_path = ?", path).Count(&count).Error; err != nil {
		return db.Classify("mark completed", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotTracked, path)
	}
	return nil
}

func (r *gormStatusRepository) Track(ctx context.Context, path, deviceID string) error {
	row := model.AudioFile{
		FilePath:               path,
		DeviceID:               deviceID,
		TranscriptionsStatus:   model.ProcessingStatusPending,
		BehaviorFeaturesStatus: model.ProcessingStatusPending,
		EmotionFeaturesStatus:  model.ProcessingStatusPending,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return db.Classify("track", err)
}

// Status returns the value of field for path.
func (r *gormStatusRepository) Status(ctx context.Context, path, field string) (string, error) {
	if err := ValidateStatusField(field); err != nil {
		return "", err
	}
	var values []string
	err := r.db.WithContext(ctx).Model(&model.AudioFile{}).
		Where("file_path = ?", path).
		Pluck(field, &values).Error
	if err != nil {
		return "", db.Classify("status", err)
	}
	if len(values) == 0 {
		return "", fmt.Errorf("%w: %s", ErrFileNotTracked, path)
	}
	return values[0], nil
}
