package jobs

import (
	"time"

	"github.com/google/uuid"

	"meetscribe/internal/analysis"
	"meetscribe/internal/media"
	"meetscribe/internal/stages"
	"meetscribe/internal/transcript"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// pending -> processing -> completed or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Options is the immutable per-job option snapshot taken at submission.
type Options struct {
	Method             string   `json:"method"`
	Language           string   `json:"language,omitempty"`
	LanguageCandidates []string `json:"language_candidates,omitempty"`
	EnableDiarization  bool     `json:"enable_diarization"`
	EnableNLP          bool     `json:"enable_nlp"`
	CustomTerms        []string `json:"custom_terms,omitempty"`
	MaxSpeakers        int      `json:"max_speakers,omitempty"`
	ProfanityFilter    bool     `json:"profanity_filter,omitempty"`
	WordTimestamps     bool     `json:"word_timestamps,omitempty"`
	WhisperModel       string   `json:"whisper_model,omitempty"`
	WhisperTemperature float64  `json:"whisper_temperature,omitempty"`
	WhisperPrompt      string   `json:"whisper_prompt,omitempty"`
	HFModel            string   `json:"hf_model,omitempty"`
	HFEndpoint         string   `json:"hf_endpoint,omitempty"`
	SummarySentences   int      `json:"summary_sentences,omitempty"`
	SentimentThreshold float64  `json:"sentiment_threshold,omitempty"`
	SampleRate         int      `json:"sample_rate,omitempty"`
	Channels           int      `json:"channels,omitempty"`
	BitRate            string   `json:"bit_rate,omitempty"`
	NoiseReduction     bool     `json:"noise_reduction,omitempty"`
}

// Result is the finished output of a pipeline run.
type Result struct {
	Transcript        transcript.Result `json:"transcript"`
	Analysis          *analysis.Result  `json:"analysis,omitempty"`
	AudioInfo         *media.Info       `json:"audio_info,omitempty"`
	ProcessingSeconds float64           `json:"processing_seconds,omitempty"`
}

// Job is a single transcription request tracked through the pipeline.
type Job struct {
	ID          string                  `json:"id"`
	Filename    string                  `json:"filename"`
	FilePath    string                  `json:"file_path"`
	Options     Options                 `json:"options"`
	Status      Status                  `json:"status"`
	Stages      map[string]stages.State `json:"stages,omitempty"`
	Result      *Result                 `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// New creates a pending job for the given file.
func New(filename, filePath string, opts Options) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		FilePath:  filePath,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate freely without racing the
// store's in-memory state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Options = cloneOptions(j.Options)
	if j.Stages != nil {
		cp.Stages = make(map[string]stages.State, len(j.Stages))
		for name, state := range j.Stages {
			st := state
			if state.SubTasks != nil {
				st.SubTasks = make(map[string]string, len(state.SubTasks))
				for k, v := range state.SubTasks {
					st.SubTasks[k] = v
				}
			}
			cp.Stages[name] = st
		}
	}
	if j.Result != nil {
		cp.Result = cloneResult(j.Result)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneOptions(opts Options) Options {
	cp := opts
	cp.LanguageCandidates = cloneStrings(opts.LanguageCandidates)
	cp.CustomTerms = cloneStrings(opts.CustomTerms)
	return cp
}

func cloneResult(result *Result) *Result {
	cp := *result
	cp.Transcript.Segments = append([]transcript.Segment(nil), result.Transcript.Segments...)
	cp.Transcript.Speakers = cloneStrings(result.Transcript.Speakers)
	if result.Analysis != nil {
		an := *result.Analysis
		an.KeyPhrases = append([]analysis.KeyPhrase(nil), result.Analysis.KeyPhrases...)
		an.Entities = append([]analysis.Entity(nil), result.Analysis.Entities...)
		an.ActionItems = cloneStrings(result.Analysis.ActionItems)
		an.Topics = cloneStrings(result.Analysis.Topics)
		an.SegmentSentiments = append([]analysis.SegmentSentiment(nil), result.Analysis.SegmentSentiments...)
		if result.Analysis.Errors != nil {
			an.Errors = make(map[string]string, len(result.Analysis.Errors))
			for k, v := range result.Analysis.Errors {
				an.Errors[k] = v
			}
		}
		cp.Analysis = &an
	}
	if result.AudioInfo != nil {
		info := *result.AudioInfo
		cp.AudioInfo = &info
	}
	return &cp
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
