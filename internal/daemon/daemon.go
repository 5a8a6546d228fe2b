// Package daemon hosts the long-running meetscribe service: single-instance
// locking, the HTTP API, and job submission plumbing.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"meetscribe/internal/archive"
	"meetscribe/internal/config"
	"meetscribe/internal/deps"
	"meetscribe/internal/jobs"
	"meetscribe/internal/language"
	"meetscribe/internal/logging"
	"meetscribe/internal/notifications"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/preflight"
	"meetscribe/internal/textutil"
)

// Audio containers accepted for upload.
var uploadExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".aac":  {},
	".ogg":  {},
	".flac": {},
	".webm": {},
	".mp4":  {},
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	history  *archive.Store
	orch     *pipeline.Orchestrator
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	api     *apiServer

	// batches tracks background batch runs so Stop can drain them.
	batches sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	JobCount     int
	StorePath    string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies. history may be nil.
func New(cfg *config.Config, store *jobs.Store, history *archive.Store, orch *pipeline.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "meetscribed.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		history:  history,
		orch:     orch,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	orch.OnTerminal(d.jobFinished)

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and begins serving
// the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another meetscribe daemon instance is already running")
	}

	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if !result.Passed {
			d.logger.Warn("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		}
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("meetscribe daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, waits for in-flight pipelines, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.batches.Wait()
	d.orch.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("meetscribe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobCount:     d.store.Count(),
		StorePath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}

// DefaultOptions returns the per-job option snapshot the configuration
// prescribes when a request omits a field.
func (d *Daemon) DefaultOptions() jobs.Options {
	p := d.cfg.Processing
	return jobs.Options{
		Method:             p.Method,
		Language:           p.Language,
		LanguageCandidates: append([]string(nil), p.LanguageCandidates...),
		EnableDiarization:  p.EnableDiarization,
		EnableNLP:          p.EnableNLP,
		MaxSpeakers:        p.MaxSpeakers,
		ProfanityFilter:    p.ProfanityFilter,
		WordTimestamps:     p.WordTimestamps,
		SampleRate:         p.SampleRate,
		Channels:           p.Channels,
		BitRate:            p.BitRate,
		NoiseReduction:     p.NoiseReduction,
		SummarySentences:   d.cfg.NLP.SummarySentences,
		SentimentThreshold: d.cfg.NLP.SentimentThreshold,
	}
}

// SubmitUpload stores the uploaded audio and schedules a pipeline run for
// it. The returned job is already persisted in pending state. ctx only
// bounds the submission itself; the run is scheduled on the daemon
// lifecycle context so it outlives the request.
func (d *Daemon) SubmitUpload(ctx context.Context, filename string, content io.Reader, opts jobs.Options) (*jobs.Job, error) {
	job, err := d.storeUpload(filename, content, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(job.FilePath)
		return nil, err
	}
	if err := d.orch.Submit(d.runContext(), job); err != nil {
		_ = os.Remove(job.FilePath)
		return nil, err
	}
	return job, nil
}

// runContext returns the context background pipeline work runs under.
// Request contexts end with the HTTP response, so scheduled runs never
// inherit them.
func (d *Daemon) runContext() context.Context {
	if d.ctx != nil {
		return d.ctx
	}
	return context.Background()
}

// SubmitBatch stores every upload, persists the jobs, and runs them as one
// batch bounded by maxConcurrency. Job IDs are returned in input order.
func (d *Daemon) SubmitBatch(ctx context.Context, uploads []Upload, opts jobs.Options, maxConcurrency int) ([]string, error) {
	if len(uploads) == 0 {
		return nil, errors.New("no files in batch")
	}
	if maxConcurrency <= 0 {
		maxConcurrency = d.cfg.Workflow.MaxConcurrentJobs
	}

	ids := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		job, err := d.storeUpload(upload.Filename, upload.Content, opts)
		if err != nil {
			return nil, err
		}
		if err := d.store.Set(job); err != nil {
			return nil, err
		}
		ids = append(ids, job.ID)
	}

	batch := append([]string(nil), ids...)
	d.batches.Add(1)
	go func() {
		defer d.batches.Done()
		ctx := d.runContext()
		started := time.Now()
		failed := 0
		for _, err := range d.orch.ProcessBatch(ctx, batch, maxConcurrency) {
			if err != nil {
				failed++
			}
		}
		if err := d.notifier.NotifyBatchCompleted(ctx, len(batch)-failed, failed, time.Since(started)); err != nil {
			d.logger.Warn("batch notification not delivered", logging.Error(err))
		}
	}()
	return ids, nil
}

// Upload is one file in a batch submission.
type Upload struct {
	Filename string
	Content  io.Reader
}

// DeleteJob removes a job record and its uploaded input file.
func (d *Daemon) DeleteJob(id string) error {
	job, ok := d.store.Get(id)
	if !ok {
		return d.store.Delete(id)
	}
	if err := d.store.Delete(id); err != nil {
		return err
	}
	if job.FilePath != "" {
		if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("input file not removed",
				logging.String(logging.FieldJobID, id),
				logging.Error(err))
		}
	}
	return nil
}

func (d *Daemon) storeUpload(filename string, content io.Reader, opts jobs.Options) (*jobs.Job, error) {
	filename = textutil.SanitizeFileName(filepath.Base(strings.TrimSpace(filename)))
	if filename == "" || filename == "." {
		return nil, errors.New("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := uploadExtensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
	if err := os.MkdirAll(d.cfg.Paths.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	if canonical := language.Canonical(opts.Language); canonical != "" {
		opts.Language = canonical
	}
	opts.LanguageCandidates = language.NormalizeCandidates(opts.LanguageCandidates)

	dest := filepath.Join(d.cfg.Paths.UploadDir, uuid.NewString()+ext)
	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("close upload file: %w", err)
	}
	return jobs.New(filename, dest, opts), nil
}

// jobFinished archives and announces a job that reached a terminal state.
func (d *Daemon) jobFinished(job *jobs.Job) {
	ctx := d.runContext()
	if d.history != nil {
		if err := d.history.Record(ctx, job); err != nil {
			d.logger.Warn("job not archived",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
	}

	var err error
	if job.Status == jobs.StatusCompleted {
		lang := ""
		speakers := 0
		if job.Result != nil {
			lang = job.Result.Transcript.Language
			speakers = job.Result.Transcript.SpeakerCount
		}
		err = d.notifier.NotifyJobCompleted(ctx, job.Filename, lang, speakers)
	} else {
		err = d.notifier.NotifyJobFailed(ctx, job.Filename, job.Error)
	}
	if err != nil {
		d.logger.Warn("notification not delivered",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}
