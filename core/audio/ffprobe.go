package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// FFprobe shells out to ffprobe, reading the audio from stdin.
type FFprobe struct {
	path string
}

// NewFFprobe creates an FFprobe prober.
func NewFFprobe(path string) *FFprobe {
	return &FFprobe{path: path}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe implements Prober.
func (p *FFprobe) Probe(ctx context.Context, audio []byte) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		"-i", "pipe:0",
	}

	cmd := exec.CommandContext(ctx, p.path, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(audio)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed: %w: %s", err, stderr.String())
	}
	return parseFFprobeDuration(out.Bytes())
}

func parseFFprobeDuration(raw []byte) (time.Duration, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(raw, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output: %s", raw)
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probeData.Format.Duration, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
