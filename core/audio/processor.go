// Package audio measures the length of fetched recordings.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smileslot/logger"
)

// ErrNoDuration is returned when no prober could read the audio length.
var ErrNoDuration = errors.New("audio duration unavailable")

// Prober reads the playback length of encoded audio.
type Prober interface {
	Probe(ctx context.Context, audio []byte) (time.Duration, error)
}

// Chain tries each prober in order and returns the first positive duration.
type Chain []Prober

// Probe implements Prober.
func (c Chain) Probe(ctx context.Context, audio []byte) (time.Duration, error) {
	var errs []string
	for _, p := range c {
		if p == nil {
			continue
		}
		d, err := p.Probe(ctx, audio)
		if err == nil && d > 0 {
			return d, nil
		}
		if err != nil {
			logger.Debug("duration probe failed", logger.String("prober", fmt.Sprintf("%T", p)), logger.ErrorField(err))
			errs = append(errs, err.Error())
		}
	}
	if len(errs) == 0 {
		return 0, ErrNoDuration
	}
	return 0, fmt.Errorf("%w: %s", ErrNoDuration, strings.Join(errs, "; "))
}

// NewProber returns the WAV header prober, followed by ffprobe when a path is configured.
func NewProber(ffprobePath string) Prober {
	chain := Chain{WavProber{}}
	if ffprobePath != "" {
		chain = append(chain, NewFFprobe(ffprobePath))
	}
	return chain
}
