package timeline

import (
	"time"

	"smileslot/core/slotkey"
	"smileslot/model"
)

// TimestampLayout is the wall-clock format of TimelinePoint.Timestamp.
const TimestampLayout = "15:04:05"

// Input carries everything needed to build one clean record.
type Input struct {
	Key      slotkey.Key
	Samples  []Sample
	Duration time.Duration
	Elapsed  time.Duration
}

// Build assembles a TimelineRecord. Points keep the order of in.Samples and are
// stamped at slot start plus their second. DurationSeconds is the audio length
// rounded down, whatever the number of points.
func Build(in Input) model.TimelineRecord {
	start := in.Key.SlotStart()
	points := make(model.Timeline, 0, len(in.Samples))
	for _, s := range in.Samples {
		points = append(points, model.TimelinePoint{
			Timestamp: start.Add(time.Duration(s.Second) * time.Second).Format(TimestampLayout),
			Features:  s.Features,
		})
	}

	duration := int(in.Duration / time.Second)
	if duration < 0 {
		duration = 0
	}

	return model.TimelineRecord{
		DeviceID:         in.Key.DeviceID,
		Date:             in.Key.DateString(),
		TimeBlock:        in.Key.TimeBlock,
		Filename:         in.Key.Filename,
		DurationSeconds:  duration,
		FeaturesTimeline: points,
		ProcessingTime:   in.Elapsed.Seconds(),
	}
}

// BuildFailed records that the slot was attempted and failed: empty timeline,
// zero duration and the cause as text.
func BuildFailed(key slotkey.Key, cause error, elapsed time.Duration) model.TimelineRecord {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return model.TimelineRecord{
		DeviceID:         key.DeviceID,
		Date:             key.DateString(),
		TimeBlock:        key.TimeBlock,
		Filename:         key.Filename,
		DurationSeconds:  0,
		FeaturesTimeline: model.Timeline{},
		ProcessingTime:   elapsed.Seconds(),
		Error:            &msg,
	}
}

// Stopwatch measures per-file processing latency.
type Stopwatch struct {
	start time.Time
	now   func() time.Time
}

// StartStopwatch starts a stopwatch on the wall clock.
func StartStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now(), now: time.Now}
}

// Elapsed returns the time since the stopwatch started.
func (s *Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}
