package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smileslot/db"
	"smileslot/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlotRepository persists one timeline record per (device_id, date, time_block).
type SlotRepository interface {
	// Upsert inserts the record or fully replaces the non-key columns of the
	// existing row in one statement.
	Upsert(ctx context.Context, rec *model.TimelineRecord) error
	Get(ctx context.Context, deviceID, date, timeBlock string) (*model.TimelineRecord, error)
	ListByDate(ctx context.Context, deviceID, date string) ([]*model.TimelineRecord, error)
	Ping(ctx context.Context) error
}

type gormSlotRepository struct {
	db *gorm.DB
}

// NewGormSlotRepository 创建 GORM slot 仓库
func NewGormSlotRepository(db *gorm.DB) SlotRepository {
	return &gormSlotRepository{db: db}
}

var slotKeyColumns = []clause.Column{{Name: "device_id"}, {Name: "date"}, {Name: "time_block"}}

// overwritten on conflict; created_at is kept from the first insert
var slotValueColumns = []string{
	"filename",
	"duration_seconds",
	"features_timeline",
	"processing_time",
	"error",
	"updated_at",
}

func checkKey(rec *model.TimelineRecord) error {
	var empty []string
	if strings.TrimSpace(rec.DeviceID) == "" {
		empty = append(empty, "device_id")
	}
	if strings.TrimSpace(rec.Date) == "" {
		empty = append(empty, "date")
	}
	if strings.TrimSpace(rec.TimeBlock) == "" {
		empty = append(empty, "time_block")
	}
	if len(empty) > 0 {
		return fmt.Errorf("empty key fields: %s", strings.Join(empty, ", "))
	}
	return nil
}

// Upsert 写入或覆盖 slot
func (r *gormSlotRepository) Upsert(ctx context.Context, rec *model.TimelineRecord) error {
	if rec == nil {
		return &db.InvalidKeyError{Op: "upsert", Err: errors.New("nil record")}
	}
	if err := checkKey(rec); err != nil {
		return &db.InvalidKeyError{Op: "upsert", Err: err}
	}
	if rec.FeaturesTimeline == nil {
		rec.FeaturesTimeline = model.Timeline{}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   slotKeyColumns,
			DoUpdates: clause.AssignmentColumns(slotValueColumns),
		}).
		Create(rec).Error
	return db.Classify("upsert", err)
}

// Get returns nil, nil when the slot has never been written.
func (r *gormSlotRepository) Get(ctx context.Context, deviceID, date, timeBlock string) (*model.TimelineRecord, error) {
	var rec model.TimelineRecord
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND date = ? AND time_block = ?", deviceID, date, timeBlock).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, db.Classify("get", err)
	}
	return &rec, nil
}

// ListByDate 获取某设备某天的所有 slot, 按 time_block 排序
func (r *gormSlotRepository) ListByDate(ctx context.Context, deviceID, date string) ([]*model.TimelineRecord, error) {
	var recs []*model.TimelineRecord
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND date = ?", deviceID, date).
		Order("time_block ASC").
		Find(&recs).Error
	if err != nil {
		return nil, db.Classify("list", err)
	}
	return recs, nil
}

func (r *gormSlotRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return db.Classify("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &db.StoreUnavailableError{Op: "ping", Err: err}
	}
	return nil
}
