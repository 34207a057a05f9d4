package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"smileslot/logger"
	"smileslot/model"

	"github.com/cenkalti/backoff/v4"
)

// HTTPExtractor calls an openSMILE sidecar service.
//
// POST {BaseURL}/extract?feature_set=eGeMAPSv02 with the raw audio as body.
// The sidecar answers with frame_period (seconds) and one row per frame.
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
}

type extractResponse struct {
	FeatureSet  string  `json:"feature_set"`
	FramePeriod float64 `json:"frame_period"`
	Frames      []struct {
		Offset   float64            `json:"offset"`
		Features map[string]float64 `json:"features"`
	} `json:"frames"`
	Error string `json:"error,omitempty"`
}

// NewHTTPExtractor creates a client with a per-call retry budget of timeout.
func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: timeout,
	}
}

// Extract implements Extractor.
func (h *HTTPExtractor) Extract(ctx context.Context, audio []byte, featureSet string) (*Extraction, error) {
	if err := CheckFeatureSet(featureSet); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/extract?feature_set=%s", h.baseURL, url.QueryEscape(featureSet))
	var parsed extractResponse

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "audio/wav")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			logger.Warn("extractor request failed", logger.ErrorField(err))
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnsupportedMediaType:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedFormat, bytes.TrimSpace(body)))
		case resp.StatusCode >= 500:
			return fmt.Errorf("extractor server error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		case resp.StatusCode >= 400:
			return backoff.Permanent(&ExtractionError{Reason: fmt.Sprintf("extractor rejected request (%d)", resp.StatusCode), Err: errors.New(string(bytes.TrimSpace(body)))})
		}

		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(&ExtractionError{Reason: "decode extractor response", Err: err})
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = h.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) || errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, &ExtractionError{Reason: "extractor unavailable", Err: err}
	}

	if parsed.Error != "" {
		return nil, &ExtractionError{Reason: parsed.Error}
	}
	return toExtraction(parsed)
}

func toExtraction(parsed extractResponse) (*Extraction, error) {
	period := DefaultFramePeriod
	if parsed.FramePeriod > 0 {
		period = time.Duration(parsed.FramePeriod * float64(time.Second))
	}
	frames := make([]Frame, 0, len(parsed.Frames))
	for i, row := range parsed.Frames {
		vec, err := model.FeatureVectorFromMap(row.Features)
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("frame %d", i), Err: err}
		}
		frames = append(frames, Frame{Offset: row.Offset, Features: vec})
	}
	return &Extraction{Frames: frames, FramePeriod: period}, nil
}
