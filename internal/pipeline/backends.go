package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"meetscribe/internal/analysis"
	"meetscribe/internal/config"
	"meetscribe/internal/jobs"
	"meetscribe/internal/language"
	"meetscribe/internal/services"
	"meetscribe/internal/services/azurespeech"
	"meetscribe/internal/services/huggingface"
	"meetscribe/internal/services/textanalytics"
	"meetscribe/internal/services/whisper"
	"meetscribe/internal/transcript"
)

// Transcriber converts a normalized audio file into a transcript. onProgress
// receives coarse percentages and may be nil.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error)
}

// SeparateDiarizer produces speaker turns in a pass independent of
// transcription. DiarizeFast is tried first; DiarizeRealtime is the slower
// fallback.
type SeparateDiarizer interface {
	DiarizeFast(ctx context.Context, path string, onProgress func(int)) ([]transcript.DiarizationSegment, error)
	DiarizeRealtime(ctx context.Context, path string, onProgress func(int)) ([]transcript.DiarizationSegment, error)
}

// Analyzer runs the NLP sub-tasks over a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, tr transcript.Result, onProgress analysis.ProgressFunc) *analysis.Result
}

// Backends is the collaborator set resolved for one job. Diarizer is nil when
// no separate diarization pass is available and Analyzer is nil when analysis
// is not configured.
type Backends struct {
	Transcriber Transcriber
	Diarizer    SeparateDiarizer
	Analyzer    Analyzer
}

// Factory resolves the collaborator set for a job's option snapshot.
type Factory interface {
	For(opts jobs.Options) (Backends, error)
}

// Transcription methods accepted by the factory.
const (
	MethodAzure        = "azure"
	MethodWhisperLocal = "whisper_local"
	MethodWhisperAPI   = "whisper_api"
	MethodHuggingFace  = "huggingface"
)

// ConfigFactory builds backends from the static service configuration.
type ConfigFactory struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewConfigFactory returns a factory for the given configuration.
func NewConfigFactory(cfg *config.Config, logger *slog.Logger) *ConfigFactory {
	return &ConfigFactory{cfg: cfg, logger: logger}
}

// For resolves the backend set for a job. An unrecognized method is a
// configuration error, which the orchestrator treats as fatal.
func (f *ConfigFactory) For(opts jobs.Options) (Backends, error) {
	var backends Backends

	switch opts.Method {
	case MethodAzure:
		client, err := f.azureClient()
		if err != nil {
			return Backends{}, err
		}
		backends.Transcriber = &azureTranscriber{client: client, opts: azureOptions(opts)}
		backends.Diarizer = &azureDiarizer{client: client, opts: opts, locales: locales(opts)}
	case MethodWhisperLocal:
		local := whisper.NewLocal(f.cfg.Whisper.Binary, f.cfg.Paths.WorkDir, f.logger)
		backends.Transcriber = &whisperLocalTranscriber{local: local, opts: whisperOptions(f.cfg, opts)}
	case MethodWhisperAPI:
		client, err := whisper.NewAPIClient(whisper.APIConfig{
			BaseURL: f.cfg.Whisper.BaseURL,
			Key:     f.cfg.Whisper.APIKey,
			Model:   f.cfg.Whisper.Model,
		}, f.logger)
		if err != nil {
			return Backends{}, err
		}
		backends.Transcriber = &whisperAPITranscriber{client: client, opts: whisperOptions(f.cfg, opts)}
	case MethodHuggingFace:
		endpoint := opts.HFEndpoint
		if endpoint == "" {
			endpoint = f.cfg.HuggingFace.Endpoint
		}
		model := opts.HFModel
		if model == "" {
			model = f.cfg.HuggingFace.Model
		}
		client, err := huggingface.NewClient(huggingface.Config{
			Endpoint: endpoint,
			Token:    f.cfg.HuggingFace.Token,
			Model:    model,
		}, f.logger)
		if err != nil {
			return Backends{}, err
		}
		backends.Transcriber = &huggingfaceTranscriber{client: client}
	default:
		return Backends{}, services.Wrap(services.ErrConfiguration, "transcription", "backends", "select method",
			fmt.Errorf("unknown transcription method %q", opts.Method))
	}

	// Non-Azure backends never diarize inline; a separate Azure pass fills
	// the gap when Speech credentials are configured.
	if backends.Diarizer == nil && opts.EnableDiarization && f.cfg.Azure.SpeechKey != "" {
		client, err := f.azureClient()
		if err == nil {
			backends.Diarizer = &azureDiarizer{client: client, opts: opts, locales: locales(opts)}
		}
	}

	if opts.EnableNLP {
		backends.Analyzer = f.analyzer(opts)
	}
	return backends, nil
}

func (f *ConfigFactory) azureClient() (*azurespeech.Client, error) {
	return azurespeech.NewClient(azurespeech.Config{
		Key:      f.cfg.Azure.SpeechKey,
		Region:   f.cfg.Azure.SpeechRegion,
		Endpoint: f.cfg.Azure.SpeechEndpoint,
		Timeout:  time.Duration(f.cfg.Azure.RequestTimeout) * time.Second,
	}, f.logger)
}

func (f *ConfigFactory) analyzer(opts jobs.Options) Analyzer {
	var client analysis.TextClient
	if f.cfg.Azure.TextAnalyticsKey != "" {
		ta, err := textanalytics.NewClient(textanalytics.Config{
			Endpoint: f.cfg.Azure.TextAnalyticsEndpoint,
			Key:      f.cfg.Azure.TextAnalyticsKey,
			Timeout:  time.Duration(f.cfg.Azure.RequestTimeout) * time.Second,
		}, f.logger)
		if err == nil {
			client = ta
		}
	}
	return analysis.NewAnalyzer(client, analysis.Config{
		SummarySentences:   intOr(opts.SummarySentences, f.cfg.NLP.SummarySentences),
		SentimentThreshold: floatOr(opts.SentimentThreshold, f.cfg.NLP.SentimentThreshold),
		MaxKeyPhrases:      f.cfg.NLP.MaxKeyPhrases,
		MaxActionItems:     f.cfg.NLP.MaxActionItems,
		Workers:            f.cfg.Workflow.AnalysisWorkers,
	}, f.logger)
}

// locales resolves the job's requested languages to supported locale tags,
// defaulting to en-US.
func locales(opts jobs.Options) []string {
	candidates := opts.LanguageCandidates
	if opts.Language != "" {
		candidates = append([]string{opts.Language}, candidates...)
	}
	normalized := language.NormalizeCandidates(candidates)
	if len(normalized) == 0 {
		return []string{"en-US"}
	}
	return normalized
}

// baseLanguage reduces a locale tag to its bare language code ("en-US" to
// "en") for backends that do not take regions.
func baseLanguage(opts jobs.Options) string {
	tags := locales(opts)
	if idx := strings.Index(tags[0], "-"); idx > 0 {
		return tags[0][:idx]
	}
	return tags[0]
}

func azureOptions(opts jobs.Options) azurespeech.TranscribeOptions {
	return azurespeech.TranscribeOptions{
		Locales:         locales(opts),
		Diarization:     opts.EnableDiarization,
		MaxSpeakers:     opts.MaxSpeakers,
		ProfanityFilter: opts.ProfanityFilter,
		WordTimestamps:  opts.WordTimestamps,
		CustomTerms:     opts.CustomTerms,
	}
}

func whisperOptions(cfg *config.Config, opts jobs.Options) whisper.LocalOptions {
	model := opts.WhisperModel
	if model == "" {
		model = cfg.Whisper.Model
	}
	temperature := opts.WhisperTemperature
	if temperature == 0 {
		temperature = cfg.Whisper.Temperature
	}
	prompt := opts.WhisperPrompt
	if prompt == "" {
		prompt = cfg.Whisper.Prompt
	}
	return whisper.LocalOptions{
		Model:       model,
		Language:    baseLanguage(opts),
		Temperature: temperature,
		Prompt:      prompt,
	}
}

func intOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func floatOr(value, fallback float64) float64 {
	if value > 0 {
		return value
	}
	return fallback
}

type azureTranscriber struct {
	client *azurespeech.Client
	opts   azurespeech.TranscribeOptions
}

func (a *azureTranscriber) Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error) {
	return a.client.Transcribe(ctx, path, a.opts, onProgress)
}

type azureDiarizer struct {
	client  *azurespeech.Client
	opts    jobs.Options
	locales []string
}

func (a *azureDiarizer) DiarizeFast(ctx context.Context, path string, onProgress func(int)) ([]transcript.DiarizationSegment, error) {
	return a.client.DiarizeFast(ctx, path, a.opts.MaxSpeakers, a.locales, onProgress)
}

func (a *azureDiarizer) DiarizeRealtime(ctx context.Context, path string, onProgress func(int)) ([]transcript.DiarizationSegment, error) {
	return a.client.DiarizeRealtime(ctx, path, a.locales[0], onProgress)
}

type whisperLocalTranscriber struct {
	local *whisper.Local
	opts  whisper.LocalOptions
}

func (w *whisperLocalTranscriber) Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error) {
	return w.local.Transcribe(ctx, path, w.opts, onProgress)
}

type whisperAPITranscriber struct {
	client *whisper.APIClient
	opts   whisper.LocalOptions
}

func (w *whisperAPITranscriber) Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error) {
	return w.client.Transcribe(ctx, path, w.opts, onProgress)
}

type huggingfaceTranscriber struct {
	client *huggingface.Client
}

func (h *huggingfaceTranscriber) Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error) {
	return h.client.Transcribe(ctx, path, onProgress)
}
