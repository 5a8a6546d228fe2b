// Package pipeline drives a transcription job from submission to its
// terminal state: preprocessing, transcription, a parallel diarization and
// analysis phase, merge, and finalization.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"meetscribe/internal/analysis"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
	"meetscribe/internal/media"
	"meetscribe/internal/services"
	"meetscribe/internal/stages"
	"meetscribe/internal/transcript"
)

const maxDetailLength = 200

// Normalizer converts a recording into the format the backends expect.
// Implemented by media.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, source string, params media.NormalizeParams) (string, error)
}

// AudioProber inspects a media file. Implemented by media.Prober.
type AudioProber interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Settings bounds orchestrator concurrency.
type Settings struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// Orchestrator runs pipelines against the job store. One orchestrator serves
// the whole process; per-job state lives in the store, never on the
// orchestrator.
type Orchestrator struct {
	store      *jobs.Store
	normalizer Normalizer
	prober     AudioProber
	factory    Factory
	logger     *slog.Logger
	sem        *semaphore.Weighted
	jobTimeout time.Duration
	wg         sync.WaitGroup
	onTerminal func(*jobs.Job)
}

// NewOrchestrator creates an orchestrator. prober may be nil.
func NewOrchestrator(store *jobs.Store, normalizer Normalizer, prober AudioProber, factory Factory, settings Settings, logger *slog.Logger) *Orchestrator {
	limit := settings.MaxConcurrentJobs
	if limit <= 0 {
		limit = 1
	}
	return &Orchestrator{
		store:      store,
		normalizer: normalizer,
		prober:     prober,
		factory:    factory,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		sem:        semaphore.NewWeighted(int64(limit)),
		jobTimeout: settings.JobTimeout,
	}
}

// OnTerminal registers a callback invoked with the stored job after it
// reaches a terminal state. Set it before any run starts.
func (o *Orchestrator) OnTerminal(fn func(*jobs.Job)) {
	o.onTerminal = fn
}

func (o *Orchestrator) notifyTerminal(jobID string) {
	if o.onTerminal == nil {
		return
	}
	if job, ok := o.store.Get(jobID); ok {
		o.onTerminal(job)
	}
}

// Submit persists a new pending job and schedules its pipeline run in the
// background, bounded by the configured concurrency limit.
func (o *Orchestrator) Submit(ctx context.Context, job *jobs.Job) error {
	if err := o.store.Set(job); err != nil {
		return err
	}
	o.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("method", job.Options.Method))
	o.schedule(ctx, job.ID)
	return nil
}

func (o *Orchestrator) schedule(ctx context.Context, jobID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.logger.Warn("job never started",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err))
			return
		}
		defer o.sem.Release(1)
		if err := o.Process(ctx, jobID); err != nil {
			o.logger.Error("pipeline run failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err))
		}
	}()
}

// Wait blocks until every scheduled run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ProcessBatch runs the given jobs with at most maxConcurrency pipelines in
// flight. The returned errors are aligned with jobIDs by index; one job
// failing never cancels the others.
func (o *Orchestrator) ProcessBatch(ctx context.Context, jobIDs []string, maxConcurrency int) []error {
	return RunBatch(ctx, len(jobIDs), maxConcurrency, func(ctx context.Context, index int) error {
		return o.Process(services.WithBatchIndex(ctx, index), jobIDs[index])
	})
}

// Process runs a single job's pipeline to a terminal state. Already-terminal
// jobs are left untouched.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (err error) {
	job, ok := o.store.Get(jobID)
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "pipeline", fmt.Sprintf("job %s not found", jobID), nil)
	}
	if job.Status.Terminal() {
		return nil
	}
	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
		defer cancel()
	}
	ctx = services.WithJobID(ctx, jobID)
	logger := o.logger.With(logging.String(logging.FieldJobID, jobID))

	start := time.Now()
	tracker := stages.NewTracker(enabledStages(job.Options)...)

	persist := func() {
		if _, err := o.store.UpdateFields(jobID, func(j *jobs.Job) {
			j.Stages = tracker.Snapshot()
		}); err != nil {
			logger.Warn("stage snapshot not persisted", logging.Error(err))
		}
	}
	fail := func(cause error) error {
		now := time.Now().UTC()
		if _, storeErr := o.store.UpdateFields(jobID, func(j *jobs.Job) {
			j.Status = jobs.StatusFailed
			j.Error = cause.Error()
			j.Stages = tracker.Snapshot()
			j.CompletedAt = &now
		}); storeErr != nil {
			logger.Error("failure not persisted", logging.Error(storeErr))
		}
		logger.Error("job failed", logging.Error(cause))
		o.notifyTerminal(jobID)
		return cause
	}
	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	now := time.Now().UTC()
	if _, err := o.store.UpdateFields(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusProcessing
		j.StartedAt = &now
		j.Error = ""
		j.Stages = tracker.Snapshot()
	}); err != nil {
		return err
	}
	logger.Info("job started", logging.String("file", job.Filename))

	backends, err := o.factory.For(job.Options)
	if err != nil {
		return fail(err)
	}

	normalized, audioInfo, err := o.preprocess(ctx, job, tracker, persist)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if removeErr := os.Remove(normalized); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn("intermediate audio not removed", logging.Error(removeErr))
		}
	}()

	result, err := o.transcribe(ctx, backends.Transcriber, normalized, tracker, persist)
	if err != nil {
		return fail(err)
	}

	var (
		analysisResult *analysis.Result
		diarTurns      []transcript.DiarizationSegment
		diarRan        bool
	)
	tasks := make(map[string]func(context.Context) error)

	if job.Options.EnableDiarization {
		switch {
		case result.Diarization == transcript.DiarizationInline:
			tracker.Update(stages.Diarization, stages.StatusDone, "Inline with transcription", 100)
		case backends.Diarizer == nil:
			tracker.Update(stages.Diarization, stages.StatusError, "no diarization backend configured", 100)
		default:
			tasks[stages.Diarization] = func(ctx context.Context) error {
				turns, diarErr := o.diarize(ctx, backends.Diarizer, normalized, tracker, persist)
				if diarErr != nil {
					return diarErr
				}
				diarTurns = turns
				diarRan = true
				tracker.Update(stages.Diarization, stages.StatusDone,
					fmt.Sprintf("%d speaker turns", len(turns)), 100)
				persist()
				return nil
			}
		}
	}
	if job.Options.EnableNLP && backends.Analyzer != nil {
		tasks[stages.NLP] = func(ctx context.Context) error {
			tracker.Update(stages.NLP, stages.StatusRunning, "Analyzing transcript", 10)
			persist()
			analysisResult = backends.Analyzer.Analyze(ctx, result, func(task, status string) {
				tracker.SetSubTask(stages.NLP, task, status)
				persist()
			})
			tracker.Update(stages.NLP, stages.StatusDone, "Analysis complete", 100)
			persist()
			return nil
		}
	}
	persist()

	if len(tasks) > 0 {
		for name, taskErr := range RunParallel(ctx, int64(len(tasks)), tasks) {
			logger.Warn("stage failed",
				logging.String(logging.FieldStage, name),
				logging.Error(taskErr))
			tracker.Update(name, stages.StatusError, truncateDetail(taskErr.Error()), 100)
		}
		persist()
	}

	if diarRan {
		result = transcript.MergeDiarization(result, diarTurns)
		analysis.AttachSpeakers(analysisResult, result.Segments)
	}

	for name, state := range tracker.Snapshot() {
		if state.Status == stages.StatusPending || state.Status == stages.StatusRunning {
			tracker.MarkSkipped(name)
		}
	}

	completed := time.Now().UTC()
	jobResult := &jobs.Result{
		Transcript:        result,
		Analysis:          analysisResult,
		AudioInfo:         audioInfo,
		ProcessingSeconds: time.Since(start).Seconds(),
	}
	if _, err := o.store.UpdateFields(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.Result = jobResult
		j.Stages = tracker.Snapshot()
		j.CompletedAt = &completed
	}); err != nil {
		return err
	}
	logger.Info("job completed",
		logging.Int("segments", len(result.Segments)),
		logging.Float64("seconds", jobResult.ProcessingSeconds))
	o.notifyTerminal(jobID)
	return nil
}

func (o *Orchestrator) preprocess(ctx context.Context, job *jobs.Job, tracker *stages.Tracker, persist func()) (string, *media.Info, error) {
	ctx = services.WithStage(ctx, stages.Preprocessing)
	tracker.Update(stages.Preprocessing, stages.StatusRunning, "Normalizing audio", 10)
	persist()

	normalized, err := o.normalizer.Normalize(ctx, job.FilePath, media.NormalizeParams{
		SampleRate:     job.Options.SampleRate,
		Channels:       job.Options.Channels,
		BitRate:        job.Options.BitRate,
		NoiseReduction: job.Options.NoiseReduction,
	})
	if err != nil {
		tracker.Update(stages.Preprocessing, stages.StatusError, truncateDetail(err.Error()), 100)
		return "", nil, err
	}

	var audioInfo *media.Info
	if o.prober != nil {
		if info, probeErr := o.prober.Probe(ctx, normalized); probeErr == nil {
			audioInfo = &info
		}
	}
	tracker.Update(stages.Preprocessing, stages.StatusDone, "Audio normalized", 100)
	persist()
	return normalized, audioInfo, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, transcriber Transcriber, path string, tracker *stages.Tracker, persist func()) (transcript.Result, error) {
	ctx = services.WithStage(ctx, stages.Transcription)
	tracker.Update(stages.Transcription, stages.StatusRunning, "Transcribing", 0)
	persist()

	// Streaming backends cannot know total duration in advance, so progress
	// holds at 95 until the call returns.
	result, err := transcriber.Transcribe(ctx, path, func(progress int) {
		if progress > 95 {
			progress = 95
		}
		tracker.SetProgress(stages.Transcription, progress)
		persist()
	})
	if err != nil {
		tracker.Update(stages.Transcription, stages.StatusError, truncateDetail(err.Error()), 100)
		return transcript.Result{}, err
	}
	tracker.Update(stages.Transcription, stages.StatusDone,
		fmt.Sprintf("%d segments", len(result.Segments)), 100)
	persist()
	return result, nil
}

// diarize tries the fast endpoint first and falls back to the realtime pass.
// The stage only fails when both attempts fail.
func (o *Orchestrator) diarize(ctx context.Context, diarizer SeparateDiarizer, path string, tracker *stages.Tracker, persist func()) ([]transcript.DiarizationSegment, error) {
	ctx = services.WithStage(ctx, stages.Diarization)
	tracker.Update(stages.Diarization, stages.StatusRunning, "Speaker diarization", 0)
	tracker.SetSubTask(stages.Diarization, "fast_api", "running")
	persist()

	onProgress := func(progress int) {
		tracker.SetProgress(stages.Diarization, progress)
		persist()
	}

	turns, err := diarizer.DiarizeFast(ctx, path, onProgress)
	if err == nil {
		tracker.SetSubTask(stages.Diarization, "fast_api", "done")
		return turns, nil
	}
	o.logger.Warn("fast diarization failed, trying realtime fallback",
		logging.Error(err))
	tracker.SetSubTask(stages.Diarization, "fast_api", "failed")
	tracker.SetSubTask(stages.Diarization, "realtime_fallback", "running")
	persist()

	turns, err = diarizer.DiarizeRealtime(ctx, path, onProgress)
	if err != nil {
		tracker.SetSubTask(stages.Diarization, "realtime_fallback", "failed")
		persist()
		return nil, err
	}
	tracker.SetSubTask(stages.Diarization, "realtime_fallback", "done")
	return turns, nil
}

func enabledStages(opts jobs.Options) []string {
	names := []string{stages.Preprocessing, stages.Transcription}
	if opts.EnableDiarization {
		names = append(names, stages.Diarization)
	}
	if opts.EnableNLP {
		names = append(names, stages.NLP)
	}
	return names
}

func truncateDetail(detail string) string {
	if len(detail) > maxDetailLength {
		return detail[:maxDetailLength]
	}
	return detail
}
