package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mjibson/go-dsp/wav"
)

// WavProber reads the duration from a RIFF/WAVE header without decoding samples.
type WavProber struct{}

// Probe implements Prober.
func (WavProber) Probe(_ context.Context, audio []byte) (time.Duration, error) {
	w, err := wav.New(bytes.NewReader(audio))
	if err != nil {
		return 0, fmt.Errorf("read wav header: %w", err)
	}
	if w.SampleRate == 0 {
		return 0, fmt.Errorf("wav header has zero sample rate")
	}
	return w.Duration, nil
}
