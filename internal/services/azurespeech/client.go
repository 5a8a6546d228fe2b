package azurespeech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
	"meetscribe/internal/transcript"
)

const fastAPIVersion = "2024-11-15"

// Config holds connection settings for the Azure Speech service.
type Config struct {
	Key      string
	Region   string
	Endpoint string // optional override, takes precedence over Region
	Timeout  time.Duration
}

// Client calls the Azure Speech REST APIs: the fast transcription endpoint
// for whole-file recognition and the realtime short-audio endpoint as a
// diarization fallback.
type Client struct {
	cfg        Config
	endpoint   string
	sttBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs an Azure Speech client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "azure speech", "key required", nil)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	sttBase := endpoint
	if endpoint == "" {
		region := strings.TrimSpace(cfg.Region)
		if region == "" {
			return nil, services.Wrap(services.ErrConfiguration, "transcription", "azure speech", "region or endpoint required", nil)
		}
		endpoint = fmt.Sprintf("https://%s.api.cognitive.microsoft.com", region)
		sttBase = fmt.Sprintf("https://%s.stt.speech.microsoft.com", region)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		sttBase:    sttBase,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewComponentLogger(logger, "azurespeech"),
	}, nil
}

// TranscribeOptions tunes a fast transcription request.
type TranscribeOptions struct {
	Locales         []string
	Diarization     bool
	MaxSpeakers     int
	ProfanityFilter bool
	WordTimestamps  bool
	CustomTerms     []string
}

type diarizationDefinition struct {
	Enabled     bool `json:"enabled"`
	MaxSpeakers int  `json:"maxSpeakers,omitempty"`
}

type phraseListDefinition struct {
	Phrases []string `json:"phrases"`
}

type transcribeDefinition struct {
	Locales             []string               `json:"locales,omitempty"`
	Diarization         *diarizationDefinition `json:"diarization,omitempty"`
	ProfanityFilterMode string                 `json:"profanityFilterMode,omitempty"`
	WordLevelTimestamps bool                   `json:"wordLevelTimestampsEnabled,omitempty"`
	PhraseList          *phraseListDefinition  `json:"phraseList,omitempty"`
}

type fastPhrase struct {
	OffsetMilliseconds   int64   `json:"offsetMilliseconds"`
	DurationMilliseconds int64   `json:"durationMilliseconds"`
	Text                 string  `json:"text"`
	Speaker              int     `json:"speaker,omitempty"`
	Confidence           float64 `json:"confidence,omitempty"`
	Locale               string  `json:"locale,omitempty"`
}

type fastResponse struct {
	DurationMilliseconds int64 `json:"durationMilliseconds"`
	CombinedPhrases      []struct {
		Text string `json:"text"`
	} `json:"combinedPhrases"`
	Phrases []fastPhrase `json:"phrases"`
}

// Transcribe runs whole-file recognition through the fast transcription
// endpoint. When opts.Diarization is set the returned segments carry inline
// speaker labels. onProgress receives coarse percentages and may be nil.
func (c *Client) Transcribe(ctx context.Context, path string, opts TranscribeOptions, onProgress func(int)) (transcript.Result, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	onProgress(5)

	payload, err := c.submitFast(ctx, path, opts, onProgress)
	if err != nil {
		return transcript.Result{}, err
	}
	onProgress(90)

	result := transcript.Result{
		Duration:    float64(payload.DurationMilliseconds) / 1000,
		Diarization: transcript.DiarizationNone,
	}
	if len(payload.CombinedPhrases) > 0 {
		result.Text = payload.CombinedPhrases[0].Text
	}
	for _, phrase := range payload.Phrases {
		segment := transcript.Segment{
			Text:       phrase.Text,
			Start:      float64(phrase.OffsetMilliseconds) / 1000,
			End:        float64(phrase.OffsetMilliseconds+phrase.DurationMilliseconds) / 1000,
			Confidence: phrase.Confidence,
		}
		if opts.Diarization && phrase.Speaker > 0 {
			segment.Speaker = fmt.Sprintf("Speaker %d", phrase.Speaker)
		}
		if result.Language == "" && phrase.Locale != "" {
			result.Language = phrase.Locale
		}
		result.Segments = append(result.Segments, segment)
	}
	if result.Text == "" && len(result.Segments) > 0 {
		texts := make([]string, len(result.Segments))
		for i, seg := range result.Segments {
			texts[i] = seg.Text
		}
		result.Text = strings.Join(texts, " ")
	}
	if opts.Diarization {
		result.Diarization = transcript.DiarizationInline
		transcript.RecomputeSpeakers(&result)
	}
	onProgress(95)
	return result, nil
}

// DiarizeFast extracts speaker turns using the fast transcription endpoint.
func (c *Client) DiarizeFast(ctx context.Context, path string, maxSpeakers int, locales []string, onProgress func(int)) ([]transcript.DiarizationSegment, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	onProgress(10)
	payload, err := c.submitFast(ctx, path, TranscribeOptions{
		Locales:     locales,
		Diarization: true,
		MaxSpeakers: maxSpeakers,
	}, onProgress)
	if err != nil {
		return nil, err
	}
	onProgress(90)

	turns := make([]transcript.DiarizationSegment, 0, len(payload.Phrases))
	for _, phrase := range payload.Phrases {
		if phrase.Speaker <= 0 {
			continue
		}
		turns = append(turns, transcript.DiarizationSegment{
			Speaker: fmt.Sprintf("Speaker %d", phrase.Speaker),
			Start:   float64(phrase.OffsetMilliseconds) / 1000,
			End:     float64(phrase.OffsetMilliseconds+phrase.DurationMilliseconds) / 1000,
		})
	}
	if len(turns) == 0 {
		return nil, services.Wrap(services.ErrTransient, "diarization", "fast api", "no speaker turns returned", nil)
	}
	return turns, nil
}

func (c *Client) submitFast(ctx context.Context, path string, opts TranscribeOptions, onProgress func(int)) (*fastResponse, error) {
	audio, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcription", "fast api", "open audio", err)
	}
	defer audio.Close()

	definition := transcribeDefinition{
		Locales:             opts.Locales,
		WordLevelTimestamps: opts.WordTimestamps,
	}
	if opts.Diarization {
		definition.Diarization = &diarizationDefinition{Enabled: true, MaxSpeakers: opts.MaxSpeakers}
	}
	if opts.ProfanityFilter {
		definition.ProfanityFilterMode = "Masked"
	}
	if len(opts.CustomTerms) > 0 {
		definition.PhraseList = &phraseListDefinition{Phrases: opts.CustomTerms}
	}
	definitionJSON, err := json.Marshal(definition)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "encode definition", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	filePart, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "build request", err)
	}
	if _, err := io.Copy(filePart, audio); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "read audio", err)
	}
	if err := writer.WriteField("definition", string(definitionJSON)); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "build request", err)
	}
	if err := writer.Close(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "build request", err)
	}
	onProgress(25)

	requestURL := fmt.Sprintf("%s/speechtotext/transcriptions:transcribe?api-version=%s", c.endpoint, fastAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "request failed", err)
	}
	defer resp.Body.Close()
	onProgress(60)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var payload fastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fast api", "decode response", err)
	}
	return &payload, nil
}

type realtimePhrase struct {
	Speaker  int    `json:"Speaker"`
	Offset   int64  `json:"Offset"`   // ticks, 100ns
	Duration int64  `json:"Duration"` // ticks, 100ns
	Display  string `json:"Display"`
}

type realtimeResponse struct {
	RecognitionStatus string           `json:"RecognitionStatus"`
	Offset            int64            `json:"Offset"`
	Duration          int64            `json:"Duration"`
	Phrases           []realtimePhrase `json:"Phrases"`
}

// DiarizeRealtime posts the audio to the realtime conversation endpoint as a
// fallback when the fast transcription endpoint refuses the request. Slower
// and limited to shorter recordings, but independent of the fast API.
func (c *Client) DiarizeRealtime(ctx context.Context, path, language string, onProgress func(int)) ([]transcript.DiarizationSegment, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "diarization", "realtime", "read audio", err)
	}
	onProgress(20)

	query := url.Values{}
	if language != "" {
		query.Set("language", language)
	}
	query.Set("format", "detailed")
	query.Set("diarizationEnabled", "true")

	requestURL := fmt.Sprintf("%s/speech/recognition/conversation/cognitiveservices/v1?%s", c.sttBase, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(audio))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime", "build request", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime", "request failed", err)
	}
	defer resp.Body.Close()
	onProgress(70)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var payload realtimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime", "decode response", err)
	}
	if !strings.EqualFold(payload.RecognitionStatus, "Success") {
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime",
			fmt.Sprintf("recognition status %q", payload.RecognitionStatus), nil)
	}

	turns := make([]transcript.DiarizationSegment, 0, len(payload.Phrases))
	for _, phrase := range payload.Phrases {
		if phrase.Speaker <= 0 {
			continue
		}
		turns = append(turns, transcript.DiarizationSegment{
			Speaker: fmt.Sprintf("Speaker %d", phrase.Speaker),
			Start:   float64(phrase.Offset) / 1e7,
			End:     float64(phrase.Offset+phrase.Duration) / 1e7,
		})
	}
	if len(turns) == 0 {
		return nil, services.Wrap(services.ErrTransient, "diarization", "realtime", "no speaker turns returned", nil)
	}
	return turns, nil
}
