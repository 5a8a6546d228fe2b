package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"meetscribe/internal/analysis"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
	"meetscribe/internal/media"
	"meetscribe/internal/services"
	"meetscribe/internal/stages"
	"meetscribe/internal/transcript"
)

type fakeNormalizer struct {
	dir string
	err error
}

func (f *fakeNormalizer) Normalize(_ context.Context, source string, _ media.NormalizeParams) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(source); err != nil {
		return "", services.Wrap(services.ErrValidation, "preprocessing", "normalize", "source not readable", err)
	}
	dest := filepath.Join(f.dir, filepath.Base(source)+"_normalized.wav")
	if err := os.WriteFile(dest, []byte("wav"), 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

type fakeTranscriber struct {
	result transcript.Result
	err    error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, onProgress func(int)) (transcript.Result, error) {
	if onProgress != nil {
		onProgress(50)
		onProgress(120) // orchestrator must cap this at 95
	}
	return f.result, f.err
}

type fakeDiarizer struct {
	turns       []transcript.DiarizationSegment
	fastErr     error
	realtimeErr error
}

func (f *fakeDiarizer) DiarizeFast(_ context.Context, _ string, _ func(int)) ([]transcript.DiarizationSegment, error) {
	if f.fastErr != nil {
		return nil, f.fastErr
	}
	return f.turns, nil
}

func (f *fakeDiarizer) DiarizeRealtime(_ context.Context, _ string, _ func(int)) ([]transcript.DiarizationSegment, error) {
	if f.realtimeErr != nil {
		return nil, f.realtimeErr
	}
	return f.turns, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, tr transcript.Result, onProgress analysis.ProgressFunc) *analysis.Result {
	if onProgress != nil {
		onProgress(analysis.TaskSummary, "running")
		onProgress(analysis.TaskSummary, "done")
	}
	result := &analysis.Result{Summary: "summary", Sentiment: analysis.NeutralSentiment()}
	for _, seg := range tr.Segments {
		result.SegmentSentiments = append(result.SegmentSentiments, analysis.SegmentSentiment{
			Text:      seg.Text,
			Sentiment: "neutral",
			Start:     seg.Start,
			End:       seg.End,
		})
	}
	return result
}

type fakeFactory struct {
	backends Backends
	err      error
}

func (f *fakeFactory) For(jobs.Options) (Backends, error) {
	if f.err != nil {
		return Backends{}, f.err
	}
	return f.backends, nil
}

func sampleTranscript() transcript.Result {
	return transcript.Result{
		Text:     "hello there general update",
		Duration: 10,
		Segments: []transcript.Segment{
			{Text: "hello there", Start: 0, End: 4},
			{Text: "general update", Start: 4, End: 10},
		},
		Diarization: transcript.DiarizationNone,
	}
}

func newTestEnv(t *testing.T, factory Factory) (*Orchestrator, *jobs.Store, *jobs.Job) {
	t.Helper()
	store, err := jobs.NewStore(filepath.Join(t.TempDir(), "jobs.json"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	audio := filepath.Join(t.TempDir(), "meeting.m4a")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	job := jobs.New("meeting.m4a", audio, jobs.Options{
		Method:            MethodAzure,
		EnableDiarization: true,
		EnableNLP:         true,
	})
	if err := store.Set(job); err != nil {
		t.Fatal(err)
	}
	orch := NewOrchestrator(store, &fakeNormalizer{dir: t.TempDir()}, nil, factory, Settings{MaxConcurrentJobs: 2}, logging.NewNop())
	return orch, store, job
}

func TestProcessFullPipeline(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer: &fakeDiarizer{turns: []transcript.DiarizationSegment{
			{Speaker: "Speaker 1", Start: 0, End: 5},
			{Speaker: "Speaker 2", Start: 5, End: 10},
		}},
		Analyzer: fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	stored, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("job missing")
	}
	if stored.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, error = %q", stored.Status, stored.Error)
	}
	if stored.Result == nil {
		t.Fatal("result missing")
	}
	if stored.Result.Transcript.Diarization != transcript.DiarizationHybrid {
		t.Errorf("diarization = %q", stored.Result.Transcript.Diarization)
	}
	if got := stored.Result.Transcript.Segments[0].Speaker; got != "Speaker 1" {
		t.Errorf("segment 0 speaker = %q", got)
	}
	if got := stored.Result.Transcript.Segments[1].Speaker; got != "Speaker 2" {
		t.Errorf("segment 1 speaker = %q", got)
	}
	if stored.Result.Analysis == nil || stored.Result.Analysis.Summary != "summary" {
		t.Errorf("analysis = %+v", stored.Result.Analysis)
	}
	// Speakers re-attached to the per-segment sentiments after merge.
	if got := stored.Result.Analysis.SegmentSentiments[1].Speaker; got != "Speaker 2" {
		t.Errorf("sentiment speaker = %q", got)
	}
	for name, state := range stored.Stages {
		if state.Status != stages.StatusDone {
			t.Errorf("stage %s = %s", name, state.Status)
		}
	}
	if stored.CompletedAt == nil || stored.StartedAt == nil {
		t.Error("timestamps missing")
	}
}

func TestProcessTranscriptionFailureIsFatal(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{err: errors.New("service unavailable")},
		Diarizer:    &fakeDiarizer{},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected error")
	}
	stored, _ := store.Get(job.ID)
	if stored.Status != jobs.StatusFailed {
		t.Fatalf("status = %s", stored.Status)
	}
	if stored.Error == "" {
		t.Error("error message missing")
	}
	// Downstream stages never started.
	if got := stored.Stages[stages.Diarization].Status; got != stages.StatusPending {
		t.Errorf("diarization = %s", got)
	}
	if got := stored.Stages[stages.NLP].Status; got != stages.StatusPending {
		t.Errorf("nlp = %s", got)
	}
}

func TestProcessDiarizationFailureIsIsolated(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer: &fakeDiarizer{
			fastErr:     errors.New("auth failed"),
			realtimeErr: errors.New("websocket refused"),
		},
		Analyzer: fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored, _ := store.Get(job.ID)
	if stored.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, error = %q", stored.Status, stored.Error)
	}
	diar := stored.Stages[stages.Diarization]
	if diar.Status != stages.StatusError {
		t.Errorf("diarization = %s", diar.Status)
	}
	if diar.SubTasks["fast_api"] != "failed" || diar.SubTasks["realtime_fallback"] != "failed" {
		t.Errorf("sub-tasks = %v", diar.SubTasks)
	}
	if stored.Stages[stages.NLP].Status != stages.StatusDone {
		t.Errorf("nlp = %s", stored.Stages[stages.NLP].Status)
	}
	if stored.Result == nil || stored.Result.Analysis == nil {
		t.Fatal("analysis missing despite diarization failure")
	}
	if stored.Result.Transcript.Diarization == transcript.DiarizationHybrid {
		t.Error("failed diarization must not mark the result hybrid")
	}
}

func TestProcessRealtimeFallback(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer: &fakeDiarizer{
			fastErr: errors.New("fast endpoint 403"),
			turns:   []transcript.DiarizationSegment{{Speaker: "Speaker 1", Start: 0, End: 10}},
		},
		Analyzer: fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored, _ := store.Get(job.ID)
	diar := stored.Stages[stages.Diarization]
	if diar.Status != stages.StatusDone {
		t.Fatalf("diarization = %s", diar.Status)
	}
	if diar.SubTasks["fast_api"] != "failed" || diar.SubTasks["realtime_fallback"] != "done" {
		t.Errorf("sub-tasks = %v", diar.SubTasks)
	}
	if stored.Result.Transcript.SpeakerCount != 1 {
		t.Errorf("speaker count = %d", stored.Result.Transcript.SpeakerCount)
	}
}

func TestProcessInlineDiarizationSkipsSeparatePass(t *testing.T) {
	inline := sampleTranscript()
	inline.Segments[0].Speaker = "Speaker 1"
	inline.Segments[1].Speaker = "Speaker 2"
	inline.Diarization = transcript.DiarizationInline
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: inline},
		Diarizer:    &fakeDiarizer{fastErr: errors.New("must not be called")},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored, _ := store.Get(job.ID)
	diar := stored.Stages[stages.Diarization]
	if diar.Status != stages.StatusDone || diar.Detail != "Inline with transcription" {
		t.Errorf("diarization = %+v", diar)
	}
	if stored.Result.Transcript.Diarization != transcript.DiarizationInline {
		t.Errorf("diarization mode = %q", stored.Result.Transcript.Diarization)
	}
}

func TestProcessEmptyDiarizationStillMergesHybrid(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer:    &fakeDiarizer{turns: nil},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored, _ := store.Get(job.ID)
	tr := stored.Result.Transcript
	if tr.Diarization != transcript.DiarizationHybrid {
		t.Errorf("diarization = %q", tr.Diarization)
	}
	if tr.MergedTurns != 0 || tr.SpeakerCount != 0 {
		t.Errorf("merged turns = %d, speakers = %d", tr.MergedTurns, tr.SpeakerCount)
	}
}

func TestProcessNormalizerFailureIsFatal(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
	}}
	orch, store, job := newTestEnv(t, factory)
	orch.normalizer = &fakeNormalizer{err: services.Wrap(services.ErrExternalTool, "preprocessing", "ffmpeg", "normalize audio", errors.New("exit 1"))}

	if err := orch.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected error")
	}
	stored, _ := store.Get(job.ID)
	if stored.Status != jobs.StatusFailed {
		t.Fatalf("status = %s", stored.Status)
	}
	if got := stored.Stages[stages.Preprocessing].Status; got != stages.StatusError {
		t.Errorf("preprocessing = %s", got)
	}
}

func TestProcessUnknownMethodIsFatal(t *testing.T) {
	factory := &fakeFactory{err: services.Wrap(services.ErrConfiguration, "transcription", "backends", "select method",
		errors.New(`unknown transcription method "carrier_pigeon"`))}
	orch, store, job := newTestEnv(t, factory)

	if err := orch.Process(context.Background(), job.ID); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
	stored, _ := store.Get(job.ID)
	if stored.Status != jobs.StatusFailed {
		t.Fatalf("status = %s", stored.Status)
	}
}

func TestProcessRemovesIntermediateAudio(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer:    &fakeDiarizer{},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, _, job := newTestEnv(t, factory)
	workDir := t.TempDir()
	orch.normalizer = &fakeNormalizer{dir: workDir}

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("intermediate files left behind: %v", entries)
	}
}

func TestProcessTerminalJobUntouched(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{err: errors.New("must not run")},
	}}
	orch, store, job := newTestEnv(t, factory)
	if _, err := store.UpdateFields(job.ID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
	}); err != nil {
		t.Fatal(err)
	}

	if err := orch.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	stored, _ := store.Get(job.ID)
	if stored.Status != jobs.StatusCompleted {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestProcessMissingJob(t *testing.T) {
	factory := &fakeFactory{}
	orch, _, _ := newTestEnv(t, factory)
	if err := orch.Process(context.Background(), "no-such-job"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessBatchAlignment(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer:    &fakeDiarizer{},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, store, first := newTestEnv(t, factory)

	second := jobs.New("missing.m4a", filepath.Join(t.TempDir(), "gone.m4a"), first.Options)
	if err := store.Set(second); err != nil {
		t.Fatal(err)
	}
	third := first.Clone()
	third.ID = "third"
	audio := filepath.Join(t.TempDir(), "other.m4a")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	third.FilePath = audio
	if err := store.Set(third); err != nil {
		t.Fatal(err)
	}

	errs := orch.ProcessBatch(context.Background(), []string{first.ID, second.ID, third.ID}, 3)
	if len(errs) != 3 {
		t.Fatalf("len(errs) = %d", len(errs))
	}
	if errs[0] != nil || errs[2] != nil {
		t.Errorf("errs = %v", errs)
	}
	if errs[1] == nil {
		t.Error("missing-file job should fail")
	}
	for i, id := range []string{first.ID, third.ID} {
		stored, _ := store.Get(id)
		if stored.Status != jobs.StatusCompleted {
			t.Errorf("job %d status = %s", i, stored.Status)
		}
	}
}

func TestSubmitRunsPipeline(t *testing.T) {
	factory := &fakeFactory{backends: Backends{
		Transcriber: &fakeTranscriber{result: sampleTranscript()},
		Diarizer:    &fakeDiarizer{},
		Analyzer:    fakeAnalyzer{},
	}}
	orch, store, _ := newTestEnv(t, factory)

	audio := filepath.Join(t.TempDir(), "standup.m4a")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	job := jobs.New("standup.m4a", audio, jobs.Options{Method: MethodAzure, EnableNLP: true})
	if err := orch.Submit(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	orch.Wait()

	stored, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("job missing")
	}
	if stored.Status != jobs.StatusCompleted {
		t.Errorf("status = %s, error = %q", stored.Status, stored.Error)
	}
}
