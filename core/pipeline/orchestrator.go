// Package pipeline runs batches of storage paths through
// fetch, extract, sample, build, write and status update.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smileslot/core/audio"
	"smileslot/core/extractor"
	"smileslot/core/slotkey"
	"smileslot/core/timeline"
	"smileslot/db"
	"smileslot/logger"
	"smileslot/model"
	"smileslot/storage"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrNoFiles is returned for a batch without paths.
var ErrNoFiles = errors.New("no files to process")

// SlotWriter is the slot store as seen by the pipeline.
type SlotWriter interface {
	Upsert(ctx context.Context, rec *model.TimelineRecord) error
	Ping(ctx context.Context) error
}

// StatusSink flips the file-tracking status after a write.
type StatusSink interface {
	MarkCompleted(ctx context.Context, path, field string) error
}

// Observer is told about every finished file and batch. Calls for files may
// arrive concurrently when Workers > 1.
type Observer interface {
	FileProcessed(batchID string, result model.FileResult)
	BatchFinished(result *model.BatchResult)
}

// Deps are the collaborators of one Orchestrator.
type Deps struct {
	Fetcher   storage.Fetcher
	Extractor extractor.Extractor
	Prober    audio.Prober
	Slots     SlotWriter
	Status    StatusSink
}

// Options tune retries and fan-out.
type Options struct {
	Workers         int
	StoreRetries    int
	StoreBackoff    time.Duration
	SampleTolerance time.Duration
	StatusField     string
	Observers       []Observer
}

// Orchestrator processes batches. It holds no per-batch state and is safe for
// concurrent use.
type Orchestrator struct {
	deps  Deps
	opts  Options
	newID func() string
}

// New creates an Orchestrator, filling unset options with defaults.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.StoreRetries < 0 {
		opts.StoreRetries = 0
	}
	if opts.StoreBackoff <= 0 {
		opts.StoreBackoff = 250 * time.Millisecond
	}
	if opts.SampleTolerance <= 0 {
		opts.SampleTolerance = timeline.DefaultTolerance
	}
	if opts.StatusField == "" {
		opts.StatusField = "emotion_features_status"
	}
	if deps.Prober == nil {
		deps.Prober = audio.WavProber{}
	}
	return &Orchestrator{deps: deps, opts: opts, newID: uuid.NewString}
}

// AddObserver registers an observer. Call before the first batch.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.opts.Observers = append(o.opts.Observers, obs)
}

func (o *Orchestrator) storeBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.StoreBackoff
	b.MaxInterval = 20 * o.opts.StoreBackoff
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.opts.StoreRetries)), ctx)
}

// Process runs every path of req. Per-file failures are reported in the result;
// the returned error is reserved for an invalid request or an unreachable store.
func (o *Orchestrator) Process(ctx context.Context, req model.BatchRequest) (*model.BatchResult, error) {
	if req.FeatureSet == "" {
		req.FeatureSet = model.FeatureSetEGeMAPSv02
	}
	if err := extractor.CheckFeatureSet(req.FeatureSet); err != nil {
		return nil, err
	}
	if len(req.FilePaths) == 0 {
		return nil, ErrNoFiles
	}

	start := time.Now()
	batchID := o.newID()

	if err := backoff.Retry(func() error { return o.deps.Slots.Ping(ctx) }, o.storeBackoff(ctx)); err != nil {
		logger.Error("slot store unreachable, batch aborted",
			logger.String("batchId", batchID),
			logger.ErrorField(err))
		return nil, &db.StoreUnavailableError{Op: "batch start", Err: err}
	}

	logger.Info("batch started",
		logger.String("batchId", batchID),
		logger.Int("files", len(req.FilePaths)),
		logger.Int("workers", o.opts.Workers))

	results := make([]model.FileResult, len(req.FilePaths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := o.opts.Workers
	if workers > len(req.FilePaths) {
		workers = len(req.FilePaths)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.processFile(ctx, req, req.FilePaths[i])
				for _, obs := range o.opts.Observers {
					obs.FileProcessed(batchID, results[i])
				}
			}
		}()
	}
	for i := range req.FilePaths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := Summarize(results)
	result.BatchID = batchID
	result.FeatureSet = req.FeatureSet
	result.TotalProcessingTime = time.Since(start).Seconds()

	logger.Info("batch finished",
		logger.String("batchId", batchID),
		logger.Bool("success", result.Success),
		logger.Int("processedFiles", result.ProcessedFiles),
		logger.Int("statusFailures", result.StatusFailures),
		logger.Float64("totalProcessingTime", result.TotalProcessingTime))

	for _, obs := range o.opts.Observers {
		obs.BatchFinished(result)
	}
	return result, nil
}

// Summarize aggregates per-file outcomes. A file counts as processed when its
// clean record was written. The batch succeeds when every file either reached
// status-updated or persisted a failure record without a status error, and at
// least one file wrote a clean record.
func Summarize(results []model.FileResult) *model.BatchResult {
	out := &model.BatchResult{
		Success:   true,
		SavedKeys: []string{},
		Results:   results,
	}
	for i := range results {
		r := &results[i]
		if r.Persisted() {
			out.SavedKeys = append(out.SavedKeys, r.TimeBlock)
			if r.Error == nil {
				out.ProcessedFiles++
			}
		}
		if r.StatusError != nil {
			out.StatusFailures++
		}
		ok := r.State == model.FileStateStatusUpdated ||
			(r.State == model.FileStatePersisted && r.Error != nil && r.StatusError == nil)
		if !ok {
			out.Success = false
		}
	}
	if out.ProcessedFiles == 0 {
		// 全部失败
		out.Success = false
	}
	return out
}

func errText(err error) *string {
	s := err.Error()
	return &s
}

// fileRun is the in-flight state of one file.
type fileRun struct {
	res model.FileResult
	sw  *timeline.Stopwatch
}

func (f *fileRun) finish() model.FileResult {
	f.res.ProcessingTime = f.sw.Elapsed().Seconds()
	logger.Info("file processed",
		logger.String("path", f.res.FilePath),
		logger.String("state", string(f.res.State)),
		logger.Int("timelinePoints", f.res.TimelinePoints),
		logger.Float64("processingTime", f.res.ProcessingTime))
	return f.res
}

func (f *fileRun) fail(err error) model.FileResult {
	f.res.State = model.FileStateFailed
	f.res.Error = errText(err)
	logger.Warn("file failed", logger.String("path", f.res.FilePath), logger.ErrorField(err))
	return f.finish()
}

func (o *Orchestrator) processFile(ctx context.Context, req model.BatchRequest, path string) model.FileResult {
	run := &fileRun{
		res: model.FileResult{FilePath: path, State: model.FileStatePending},
		sw:  timeline.StartStopwatch(),
	}
	res := &run.res

	if err := ctx.Err(); err != nil {
		return run.fail(err)
	}

	key, err := slotkey.Parse(path)
	if err != nil {
		return run.fail(err)
	}
	res.DeviceID, res.Date, res.TimeBlock = key.DeviceID, key.DateString(), key.TimeBlock

	data, err := o.deps.Fetcher.Fetch(ctx, path)
	if err != nil {
		return o.recordFailure(ctx, key, run, fmt.Errorf("fetch: %w", err))
	}
	res.State = model.FileStateFetched

	ext, err := o.deps.Extractor.Extract(ctx, data, req.FeatureSet)
	if err != nil {
		return o.recordFailure(ctx, key, run, fmt.Errorf("extract: %w", err))
	}
	res.State = model.FileStateExtracted

	duration, err := o.deps.Prober.Probe(ctx, data)
	if err != nil {
		duration = ext.Span()
		logger.Debug("duration probe failed, using frame span",
			logger.String("path", path),
			logger.Duration("span", duration),
			logger.ErrorField(err))
	}

	samples := timeline.SampleFrames(ext.Frames, duration, o.opts.SampleTolerance)
	rec := timeline.Build(timeline.Input{Key: key, Samples: samples, Duration: duration, Elapsed: run.sw.Elapsed()})
	res.State = model.FileStateBuilt

	if err := o.write(ctx, &rec, res); err != nil {
		return run.fail(err)
	}
	res.State = model.FileStatePersisted
	res.DurationSeconds = rec.DurationSeconds
	res.TimelinePoints = len(rec.FeaturesTimeline)
	res.FeatureSummary = timeline.Summarize(rec.FeaturesTimeline)
	if req.IncludeRawFeatures {
		res.FeaturesTimeline = rec.FeaturesTimeline
	}

	if err := o.deps.Status.MarkCompleted(ctx, path, o.opts.StatusField); err != nil {
		res.StatusError = errText(err)
		logger.Warn("status update failed, record kept",
			logger.String("path", path),
			logger.String("field", o.opts.StatusField),
			logger.ErrorField(err))
		return run.finish()
	}
	res.State = model.FileStateStatusUpdated
	return run.finish()
}

// recordFailure writes an attempted-and-failed record for an upstream error.
// A cancelled batch writes nothing.
func (o *Orchestrator) recordFailure(ctx context.Context, key slotkey.Key, run *fileRun, cause error) model.FileResult {
	if ctx.Err() != nil {
		return run.fail(cause)
	}
	rec := timeline.BuildFailed(key, cause, run.sw.Elapsed())
	if err := o.write(ctx, &rec, &run.res); err != nil {
		return run.fail(fmt.Errorf("%v; recording failure: %w", cause, err))
	}
	run.res.State = model.FileStatePersisted
	run.res.Error = errText(cause)
	logger.Warn("upstream failure recorded",
		logger.String("path", run.res.FilePath),
		logger.ErrorField(cause))
	return run.finish()
}

// write upserts rec, retrying StoreUnavailableError with backoff.
// InvalidKeyError and cancellation stop immediately.
func (o *Orchestrator) write(ctx context.Context, rec *model.TimelineRecord, res *model.FileResult) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		res.Attempts++
		err := o.deps.Slots.Upsert(ctx, rec)
		var invalid *db.InvalidKeyError
		if errors.As(err, &invalid) {
			return backoff.Permanent(err)
		}
		if err != nil {
			logger.Warn("slot upsert failed",
				logger.String("path", res.FilePath),
				logger.Int("attempt", res.Attempts),
				logger.ErrorField(err))
		}
		return err
	}
	return backoff.Retry(op, o.storeBackoff(ctx))
}
