// Package extractor adapts external openSMILE engines to a frame sequence.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smileslot/model"
)

// DefaultFramePeriod is the eGeMAPSv02 low-level descriptor hop.
const DefaultFramePeriod = 10 * time.Millisecond

// ErrUnsupportedFormat is returned when the engine cannot decode the audio.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrUnsupportedFeatureSet is returned for any feature set other than eGeMAPSv02.
var ErrUnsupportedFeatureSet = errors.New("unsupported feature set")

// ExtractionError wraps any other engine failure.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "feature extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Frame is one extractor output row.
type Frame struct {
	Offset   float64 // seconds from the start of the audio
	Features model.FeatureVector
}

// Extraction is the ordered frame sequence for one audio file.
type Extraction struct {
	Frames      []Frame
	FramePeriod time.Duration
}

// Span is the audio length covered by the frames.
func (e *Extraction) Span() time.Duration {
	if e == nil || len(e.Frames) == 0 {
		return 0
	}
	last := e.Frames[len(e.Frames)-1].Offset
	return time.Duration(last*float64(time.Second)) + e.FramePeriod
}

// Extractor turns decoded audio bytes into per-frame feature vectors.
type Extractor interface {
	Extract(ctx context.Context, audio []byte, featureSet string) (*Extraction, error)
}

// CheckFeatureSet rejects every feature set except eGeMAPSv02.
func CheckFeatureSet(featureSet string) error {
	if featureSet != model.FeatureSetEGeMAPSv02 {
		return fmt.Errorf("%w: %q", ErrUnsupportedFeatureSet, featureSet)
	}
	return nil
}
