package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
	"meetscribe/internal/transcript"
)

const defaultAPIBaseURL = "https://api.openai.com/v1"

// APIConfig configures the hosted transcription client.
type APIConfig struct {
	BaseURL string
	Key     string
	Model   string
	Timeout time.Duration
}

// APIClient posts audio to an OpenAI-compatible transcription endpoint.
type APIClient struct {
	baseURL string
	key     string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewAPIClient validates the configuration and returns a hosted client.
func NewAPIClient(cfg APIConfig, logger *slog.Logger) (*APIClient, error) {
	if cfg.Key == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "whisper-api", "validate", fmt.Errorf("api key is required"))
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &APIClient{
		baseURL: baseURL,
		key:     cfg.Key,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "whisper-api"),
	}, nil
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file and parses the verbose response.
func (c *APIClient) Transcribe(ctx context.Context, path string, opts LocalOptions, onProgress func(int)) (transcript.Result, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrValidation, "transcription", "whisper-api", "read audio", err)
	}
	onProgress(10)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "build request", err)
	}
	if _, err := part.Write(audio); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "build request", err)
	}
	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
		"temperature":     strconv.FormatFloat(opts.Temperature, 'f', -1, 64),
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "build request", err)
		}
	}
	if err := writer.Close(); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "build request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.key)
	onProgress(25)

	resp, err := c.client.Do(req)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "submit audio", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := payload
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "submit audio",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	onProgress(85)

	var parsed verboseResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper-api", "parse response", err)
	}

	result := transcript.Result{
		Text:        strings.TrimSpace(parsed.Text),
		Language:    parsed.Language,
		Duration:    parsed.Duration,
		Diarization: transcript.DiarizationNone,
	}
	for _, seg := range parsed.Segments {
		result.Segments = append(result.Segments, transcript.Segment{
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
		})
	}
	if result.Duration == 0 && len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}
	onProgress(95)
	return result, nil
}
