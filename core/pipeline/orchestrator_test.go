package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"smileslot/core/extractor"
	"smileslot/core/slotkey"
	"smileslot/db"
	"smileslot/model"
	"smileslot/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return []byte(path), nil
}

// fakeExtractor yields one frame per second for seconds frames.
type fakeExtractor struct {
	seconds int
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, _ string) (*extractor.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	frames := make([]extractor.Frame, f.seconds)
	for i := range frames {
		frames[i] = extractor.Frame{Offset: float64(i), Features: model.FeatureVector{Loudness: float64(i)}}
	}
	return &extractor.Extraction{Frames: frames, FramePeriod: time.Second}, nil
}

type fixedProber time.Duration

func (p fixedProber) Probe(context.Context, []byte) (time.Duration, error) {
	return time.Duration(p), nil
}

type fakeSlots struct {
	mu          sync.Mutex
	rows        map[string]model.TimelineRecord
	upserts     int
	unavailable int // fail this many upserts with StoreUnavailableError
	invalid     bool
	pingErr     error
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{rows: map[string]model.TimelineRecord{}}
}

func (f *fakeSlots) Upsert(_ context.Context, rec *model.TimelineRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.invalid {
		return &db.InvalidKeyError{Op: "upsert", Err: errors.New("data too long")}
	}
	if f.unavailable > 0 {
		f.unavailable--
		return &db.StoreUnavailableError{Op: "upsert", Err: errors.New("connection refused")}
	}
	f.rows[rec.DeviceID+"|"+rec.Date+"|"+rec.TimeBlock] = *rec
	return nil
}

func (f *fakeSlots) Ping(context.Context) error { return f.pingErr }

func (f *fakeSlots) row(device, date, block string) (model.TimelineRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[device+"|"+date+"|"+block]
	return r, ok
}

type fakeStatus struct {
	mu     sync.Mutex
	err    error
	marked []string
}

func (f *fakeStatus) MarkCompleted(_ context.Context, path, field string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, path+"#"+field)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	files   int
	batches []*model.BatchResult
}

func (r *recordingObserver) FileProcessed(string, model.FileResult) {
	r.mu.Lock()
	r.files++
	r.mu.Unlock()
}

func (r *recordingObserver) BatchFinished(res *model.BatchResult) {
	r.mu.Lock()
	r.batches = append(r.batches, res)
	r.mu.Unlock()
}

type harness struct {
	fetcher *fakeFetcher
	ex      *fakeExtractor
	slots   *fakeSlots
	status  *fakeStatus
	opts    Options
	prober  fixedProber
}

func newHarness() *harness {
	return &harness{
		fetcher: &fakeFetcher{fail: map[string]error{}},
		ex:      &fakeExtractor{seconds: 40},
		slots:   newFakeSlots(),
		status:  &fakeStatus{},
		opts:    Options{StoreRetries: 3, StoreBackoff: time.Millisecond},
		prober:  fixedProber(40 * time.Second),
	}
}

func (h *harness) orchestrator() *Orchestrator {
	o := New(Deps{
		Fetcher:   h.fetcher,
		Extractor: h.ex,
		Prober:    h.prober,
		Slots:     h.slots,
		Status:    h.status,
	}, h.opts)
	o.newID = func() string { return "batch-1" }
	return o
}

func run(t *testing.T, o *Orchestrator, paths ...string) *model.BatchResult {
	t.Helper()
	res, err := o.Process(context.Background(), model.BatchRequest{FilePaths: paths, FeatureSet: model.FeatureSetEGeMAPSv02})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return res
}

const pathA = "files/dev-A/2025-07-19/14-30/audio.wav"

func TestProcessConcreteScenario(t *testing.T) {
	h := newHarness()
	res := run(t, h.orchestrator(), pathA)

	if !res.Success || res.ProcessedFiles != 1 || res.BatchID != "batch-1" {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if len(res.SavedKeys) != 1 || res.SavedKeys[0] != "14-30" {
		t.Fatalf("unexpected saved keys %v", res.SavedKeys)
	}
	file := res.Results[0]
	if file.State != model.FileStateStatusUpdated || file.TimelinePoints != 40 || file.DurationSeconds != 40 {
		t.Fatalf("unexpected file result %+v", file)
	}
	if file.FeaturesTimeline != nil {
		t.Fatal("raw timeline must be omitted unless requested")
	}
	if file.FeatureSummary["Loudness_sma3"].Mean != 19.5 {
		t.Fatalf("unexpected summary %+v", file.FeatureSummary["Loudness_sma3"])
	}

	row, ok := h.slots.row("dev-A", "2025-07-19", "14-30")
	if !ok {
		t.Fatal("record not stored under (dev-A, 2025-07-19, 14-30)")
	}
	if row.DurationSeconds != 40 || len(row.FeaturesTimeline) != 40 || row.Error != nil {
		t.Fatalf("unexpected stored record: duration %d, points %d", row.DurationSeconds, len(row.FeaturesTimeline))
	}
	if row.FeaturesTimeline[0].Timestamp != "14:30:00" {
		t.Fatalf("unexpected first timestamp %q", row.FeaturesTimeline[0].Timestamp)
	}
	if len(h.status.marked) != 1 || h.status.marked[0] != pathA+"#emotion_features_status" {
		t.Fatalf("unexpected status updates %v", h.status.marked)
	}
}

func TestProcessFallsBackToFrameSpan(t *testing.T) {
	h := newHarness()
	h.ex.seconds = 12
	o := New(Deps{Fetcher: h.fetcher, Extractor: h.ex, Slots: h.slots, Status: h.status}, h.opts)

	res := run(t, o, pathA)
	if res.Results[0].DurationSeconds != 12 || res.Results[0].TimelinePoints != 12 {
		t.Fatalf("expected 12s from the frame span, got %+v", res.Results[0])
	}
}

func TestProcessIsolatesFetchFailure(t *testing.T) {
	h := newHarness()
	paths := []string{
		"files/dev-A/2025-07-19/14-00/audio.wav",
		"files/dev-A/2025-07-19/14-30/audio.wav",
		"files/dev-A/2025-07-19/15-00/audio.wav",
	}
	h.fetcher.fail[paths[1]] = fmt.Errorf("%w: %s", storage.ErrNotFound, paths[1])

	res := run(t, h.orchestrator(), paths...)

	if res.ProcessedFiles != 2 {
		t.Fatalf("expected 2 processed files, got %d", res.ProcessedFiles)
	}
	for _, i := range []int{0, 2} {
		if res.Results[i].State != model.FileStateStatusUpdated || res.Results[i].Error != nil || res.Results[i].TimelinePoints != 40 {
			t.Fatalf("file %d affected by file 2: %+v", i+1, res.Results[i])
		}
	}
	failed := res.Results[1]
	if failed.Error == nil || !strings.Contains(*failed.Error, "not found") {
		t.Fatalf("file 2 should carry the fetch error, got %+v", failed)
	}
	if failed.TimelinePoints != 0 || failed.FeaturesTimeline != nil || failed.DurationSeconds != 0 {
		t.Fatalf("file 2 should have an empty timeline, got %+v", failed)
	}

	row, ok := h.slots.row("dev-A", "2025-07-19", "14-30")
	if !ok || row.Error == nil || len(row.FeaturesTimeline) != 0 {
		t.Fatalf("failure record missing or wrong: %+v", row)
	}
	if len(h.status.marked) != 2 {
		t.Fatalf("status must only be flipped for clean records, got %v", h.status.marked)
	}
	if !res.Success {
		t.Fatal("a recorded upstream failure is a well-defined partial state")
	}
}

func TestProcessAllFetchesFailed(t *testing.T) {
	h := newHarness()
	paths := []string{
		"files/dev-A/2025-07-19/14-00/audio.wav",
		"files/dev-A/2025-07-19/14-30/audio.wav",
		"files/dev-A/2025-07-19/15-00/audio.wav",
	}
	for _, p := range paths {
		h.fetcher.fail[p] = fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}

	res := run(t, h.orchestrator(), paths...)

	if res.Success {
		t.Fatalf("a batch where every fetch failed must not succeed: %+v", res)
	}
	if res.ProcessedFiles != 0 || len(res.SavedKeys) != 3 {
		t.Fatalf("expected 3 failure records and no clean files, got %+v", res)
	}
	for _, block := range []string{"14-00", "14-30", "15-00"} {
		if row, ok := h.slots.row("dev-A", "2025-07-19", block); !ok || row.Error == nil {
			t.Fatalf("failure record for %s missing: %+v", block, row)
		}
	}
}

func TestProcessExtractionFailureRecorded(t *testing.T) {
	h := newHarness()
	h.ex.err = fmt.Errorf("%w: mp3 header", extractor.ErrUnsupportedFormat)

	res := run(t, h.orchestrator(), pathA)
	file := res.Results[0]
	if file.State != model.FileStatePersisted || file.Error == nil || !strings.Contains(*file.Error, "unsupported audio format") {
		t.Fatalf("unexpected result %+v", file)
	}
	if res.ProcessedFiles != 0 || len(res.SavedKeys) != 1 {
		t.Fatalf("unexpected counters %+v", res)
	}
}

func TestProcessStatusFailureKeepsRecord(t *testing.T) {
	h := newHarness()
	h.status.err = errors.New("status table locked")

	res := run(t, h.orchestrator(), pathA)

	if res.Success {
		t.Fatal("status failure must be reflected in success")
	}
	if res.StatusFailures != 1 || res.ProcessedFiles != 1 {
		t.Fatalf("unexpected counters %+v", res)
	}
	file := res.Results[0]
	if file.State != model.FileStatePersisted || file.StatusError == nil || file.Error != nil {
		t.Fatalf("unexpected file result %+v", file)
	}
	row, ok := h.slots.row("dev-A", "2025-07-19", "14-30")
	if !ok || len(row.FeaturesTimeline) != 40 || row.Error != nil {
		t.Fatal("persisted row must survive a status failure")
	}
	if h.slots.upserts != 1 {
		t.Fatalf("status failure must not trigger rewrites, got %d upserts", h.slots.upserts)
	}
}

func TestProcessRejectsBadTimeBlockBeforeFetch(t *testing.T) {
	h := newHarness()
	res := run(t, h.orchestrator(), "files/dev-A/2025-07-19/14-45/audio.wav")

	file := res.Results[0]
	if file.State != model.FileStateFailed || file.Error == nil {
		t.Fatalf("expected failed state, got %+v", file)
	}
	if len(h.fetcher.calls) != 0 || h.slots.upserts != 0 {
		t.Fatalf("no I/O expected, got %d fetches and %d upserts", len(h.fetcher.calls), h.slots.upserts)
	}
	if res.Success || res.ProcessedFiles != 0 || len(res.SavedKeys) != 0 {
		t.Fatalf("unexpected batch result %+v", res)
	}
	var tbErr *slotkey.InvalidTimeBlockError
	if _, err := slotkey.Parse(file.FilePath); !errors.As(err, &tbErr) {
		t.Fatalf("expected InvalidTimeBlockError, got %v", err)
	}
}

func TestProcessInvalidKeyNotRetried(t *testing.T) {
	h := newHarness()
	h.slots.invalid = true

	res := run(t, h.orchestrator(), pathA)
	file := res.Results[0]
	if file.State != model.FileStateFailed || file.Attempts != 1 || h.slots.upserts != 1 {
		t.Fatalf("expected one attempt and failed state, got %+v (upserts %d)", file, h.slots.upserts)
	}
	if len(h.status.marked) != 0 {
		t.Fatal("status must not be touched when the write failed")
	}
}

func TestProcessRetriesUnavailableStore(t *testing.T) {
	h := newHarness()
	h.slots.unavailable = 2

	res := run(t, h.orchestrator(), pathA)
	file := res.Results[0]
	if file.State != model.FileStateStatusUpdated || file.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %+v", file)
	}
}

func TestProcessGivesUpAfterBoundedRetries(t *testing.T) {
	h := newHarness()
	h.opts.StoreRetries = 2
	h.slots.unavailable = 100

	res := run(t, h.orchestrator(), pathA)
	file := res.Results[0]
	if file.State != model.FileStateFailed || file.Attempts != 3 {
		t.Fatalf("expected 3 attempts then failure, got %+v", file)
	}
	if _, ok := h.slots.row("dev-A", "2025-07-19", "14-30"); ok {
		t.Fatal("nothing should have been stored")
	}
}

func TestProcessStoreDownAtStart(t *testing.T) {
	h := newHarness()
	h.opts.StoreRetries = 1
	h.slots.pingErr = errors.New("too many connections")

	_, err := h.orchestrator().Process(context.Background(), model.BatchRequest{FilePaths: []string{pathA}})
	var unavailable *db.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StoreUnavailableError, got %v", err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Fatal("no file may be fetched when the store is down")
	}
}

func TestProcessCancelledBatchWritesNothing(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orchestrator().Process(ctx, model.BatchRequest{FilePaths: []string{pathA, "files/dev-A/2025-07-19/15-00/audio.wav"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, file := range res.Results {
		if file.State != model.FileStateFailed {
			t.Fatalf("expected failed state after cancel, got %+v", file)
		}
	}
	if h.slots.upserts != 0 || len(h.fetcher.calls) != 0 {
		t.Fatalf("cancelled batch touched the store (%d upserts) or fetched (%d)", h.slots.upserts, len(h.fetcher.calls))
	}
}

func TestProcessReprocessingReplacesRow(t *testing.T) {
	h := newHarness()
	o := h.orchestrator()
	run(t, o, pathA)

	h.ex.seconds = 10
	h.prober = fixedProber(10 * time.Second)
	run(t, h.orchestrator(), pathA)

	if len(h.slots.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(h.slots.rows))
	}
	row, _ := h.slots.row("dev-A", "2025-07-19", "14-30")
	if row.DurationSeconds != 10 || len(row.FeaturesTimeline) != 10 {
		t.Fatalf("row not replaced: duration %d, points %d", row.DurationSeconds, len(row.FeaturesTimeline))
	}
}

func TestProcessWorkersKeepRequestOrder(t *testing.T) {
	h := newHarness()
	h.opts.Workers = 4
	obs := &recordingObserver{}
	h.opts.Observers = []Observer{obs}

	var paths []string
	for _, block := range slotkey.DayBlocks()[:10] {
		paths = append(paths, "files/dev-A/2025-07-19/"+block+"/audio.wav")
	}
	res := run(t, h.orchestrator(), paths...)

	for i, file := range res.Results {
		if file.FilePath != paths[i] {
			t.Fatalf("result %d is %s, want %s", i, file.FilePath, paths[i])
		}
		if res.SavedKeys[i] != file.TimeBlock {
			t.Fatalf("saved key %d = %s, want %s", i, res.SavedKeys[i], file.TimeBlock)
		}
	}
	if obs.files != 10 || len(obs.batches) != 1 || obs.batches[0] != res {
		t.Fatalf("observer saw %d files and %d batches", obs.files, len(obs.batches))
	}
}

func TestProcessIncludeRawFeatures(t *testing.T) {
	h := newHarness()
	res, err := h.orchestrator().Process(context.Background(), model.BatchRequest{FilePaths: []string{pathA}, IncludeRawFeatures: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.FeatureSet != model.FeatureSetEGeMAPSv02 {
		t.Fatalf("empty feature set should default, got %q", res.FeatureSet)
	}
	if len(res.Results[0].FeaturesTimeline) != 40 {
		t.Fatalf("expected raw timeline, got %d points", len(res.Results[0].FeaturesTimeline))
	}
}

func TestProcessRequestValidation(t *testing.T) {
	o := newHarness().orchestrator()
	if _, err := o.Process(context.Background(), model.BatchRequest{FilePaths: []string{pathA}, FeatureSet: "ComParE_2016"}); !errors.Is(err, extractor.ErrUnsupportedFeatureSet) {
		t.Fatalf("expected ErrUnsupportedFeatureSet, got %v", err)
	}
	if _, err := o.Process(context.Background(), model.BatchRequest{}); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	msg := "boom"
	cases := []struct {
		name    string
		results []model.FileResult
		success bool
	}{
		{"all updated", []model.FileResult{{State: model.FileStateStatusUpdated}}, true},
		{"recorded failure beside a clean file", []model.FileResult{{State: model.FileStateStatusUpdated}, {State: model.FileStatePersisted, Error: &msg}}, true},
		{"only recorded failures", []model.FileResult{{State: model.FileStatePersisted, Error: &msg}}, false},
		{"status failure", []model.FileResult{{State: model.FileStatePersisted, StatusError: &msg}}, false},
		{"input failure", []model.FileResult{{State: model.FileStateStatusUpdated}, {State: model.FileStateFailed, Error: &msg}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Summarize(tc.results).Success; got != tc.success {
				t.Fatalf("success = %v, want %v", got, tc.success)
			}
		})
	}
}

type fakeLister struct {
	objects []storage.ObjectInfo
	prefix  string
}

func (f *fakeLister) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.prefix = prefix
	return f.objects, nil
}

func TestProcessDay(t *testing.T) {
	h := newHarness()
	lister := &fakeLister{objects: []storage.ObjectInfo{
		{Key: "files/dev-A/2025-07-19/15-00/audio.wav"},
		{Key: "files/dev-A/2025-07-19/14-30/audio.wav"},
		{Key: "files/dev-A/2025-07-19/14-30/meta.json"},
	}}

	res, err := h.orchestrator().ProcessDay(context.Background(), lister, model.VaultDataRequest{DeviceID: "dev-A", Date: "2025-07-19"})
	if err != nil {
		t.Fatalf("ProcessDay: %v", err)
	}
	if lister.prefix != "files/dev-A/2025-07-19/" {
		t.Fatalf("unexpected prefix %q", lister.prefix)
	}
	if len(res.Results) != 2 || res.SavedKeys[0] != "14-30" || res.SavedKeys[1] != "15-00" {
		t.Fatalf("unexpected batch %+v", res)
	}

	if _, err := h.orchestrator().ProcessDay(context.Background(), &fakeLister{}, model.VaultDataRequest{DeviceID: "dev-A", Date: "2025-07-19"}); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles for an empty day, got %v", err)
	}
	if _, err := h.orchestrator().ProcessDay(context.Background(), lister, model.VaultDataRequest{DeviceID: "dev-A", Date: "19/07/2025"}); err == nil {
		t.Fatal("expected error for a malformed date")
	}
}
