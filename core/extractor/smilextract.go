package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smileslot/logger"
	"smileslot/model"
)

// SMILExtract runs the openSMILE command line tool on a temporary copy of the audio.
type SMILExtract struct {
	binaryPath string
	configPath string
}

// NewSMILExtract creates a SMILExtract runner for the given binary and eGeMAPSv02 config.
func NewSMILExtract(binaryPath, configPath string) *SMILExtract {
	return &SMILExtract{binaryPath: binaryPath, configPath: configPath}
}

// Extract implements Extractor.
func (s *SMILExtract) Extract(ctx context.Context, audio []byte, featureSet string) (*Extraction, error) {
	if err := CheckFeatureSet(featureSet); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "smileslot-")
	if err != nil {
		return nil, &ExtractionError{Reason: "create work dir", Err: err}
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.wav")
	output := filepath.Join(workDir, "lld.csv")
	if err := os.WriteFile(input, audio, 0644); err != nil {
		return nil, &ExtractionError{Reason: "write input", Err: err}
	}

	args := []string{
		"-C", s.configPath,
		"-I", input,
		"-lldcsvoutput", output,
		"-instname", "input",
		"-loglevel", "1",
	}
	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		logger.Warn("SMILExtract failed",
			logger.ErrorField(err),
			logger.String("stderr", msg))
		if strings.Contains(msg, "unsupported") || strings.Contains(msg, "RIFF") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.TrimSpace(msg))
		}
		return nil, &ExtractionError{Reason: "SMILExtract exited with error", Err: err}
	}
	logger.Debug("SMILExtract finished", logger.Duration("elapsed", time.Since(start)))

	f, err := os.Open(output)
	if err != nil {
		return nil, &ExtractionError{Reason: "open LLD output", Err: err}
	}
	defer f.Close()
	return ParseLLDCSV(f)
}

// ParseLLDCSV reads openSMILE's ';'-separated low-level descriptor output.
// The header must contain frameTime and every eGeMAPSv02 descriptor.
func ParseLLDCSV(r io.Reader) (*Extraction, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &ExtractionError{Reason: "read LLD header", Err: err}
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.Trim(name, "'\"")] = i
	}
	timeCol, ok := columns["frameTime"]
	if !ok {
		return nil, &ExtractionError{Reason: "LLD header has no frameTime column"}
	}
	var missing []string
	for _, name := range model.FeatureNames {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ExtractionError{Reason: "LLD header", Err: &model.MissingFeaturesError{Missing: missing}}
	}

	extraction := &Extraction{FramePeriod: DefaultFramePeriod}
	values := make([]float64, len(model.FeatureNames))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("read LLD line %d", line), Err: err}
		}
		offset, err := strconv.ParseFloat(record[timeCol], 64)
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("frameTime on line %d", line), Err: err}
		}
		for i, name := range model.FeatureNames {
			v, err := strconv.ParseFloat(record[columns[name]], 64)
			if err != nil {
				return nil, &ExtractionError{Reason: fmt.Sprintf("%s on line %d", name, line), Err: err}
			}
			values[i] = v
		}
		vec, err := model.FeatureVectorFromValues(values)
		if err != nil {
			return nil, &ExtractionError{Reason: "build feature vector", Err: err}
		}
		extraction.Frames = append(extraction.Frames, Frame{Offset: offset, Features: vec})
	}

	if n := len(extraction.Frames); n >= 2 {
		step := extraction.Frames[1].Offset - extraction.Frames[0].Offset
		if step > 0 {
			extraction.FramePeriod = time.Duration(step * float64(time.Second))
		}
	}
	return extraction, nil
}
