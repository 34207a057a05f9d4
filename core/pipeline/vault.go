package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smileslot/core/slotkey"
	"smileslot/logger"
	"smileslot/model"
	"smileslot/storage"
)

// ErrInvalidDevice is returned for an empty device id or one containing a path separator.
var ErrInvalidDevice = errors.New("invalid device id")

// DayPaths lists every WAV recording stored for one device-day.
func DayPaths(ctx context.Context, lister storage.Lister, deviceID, date string) ([]string, error) {
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return nil, fmt.Errorf("%w %q", ErrInvalidDevice, deviceID)
	}
	if _, err := slotkey.ParseDate(date); err != nil {
		return nil, &slotkey.InvalidDateError{Path: slotkey.Prefix(deviceID, date), Value: date}
	}

	objects, err := lister.List(ctx, slotkey.Prefix(deviceID, date))
	if err != nil {
		return nil, err
	}
	keys := storage.AudioKeys(objects)
	logger.Info("listed device-day recordings",
		logger.String("deviceId", deviceID),
		logger.String("date", date),
		logger.Int("objects", len(objects)),
		logger.Int("audio", len(keys)))
	return keys, nil
}

// ProcessDay lists a device-day and runs it as one batch.
func (o *Orchestrator) ProcessDay(ctx context.Context, lister storage.Lister, req model.VaultDataRequest) (*model.BatchResult, error) {
	paths, err := DayPaths(ctx, lister, req.DeviceID, req.Date)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoFiles, slotkey.Prefix(req.DeviceID, req.Date))
	}
	return o.Process(ctx, model.BatchRequest{
		FilePaths:          paths,
		FeatureSet:         req.FeatureSet,
		IncludeRawFeatures: req.IncludeRawFeatures,
	})
}
