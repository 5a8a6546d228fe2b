// Package huggingface transcribes audio through a Hugging Face inference
// endpoint running an automatic speech recognition model.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
	"meetscribe/internal/transcript"
)

const defaultModel = "openai/whisper-large-v3"

// Config selects the inference endpoint and credentials.
type Config struct {
	Endpoint string // full URL; empty uses the public inference API
	Token    string
	Model    string
	Timeout  time.Duration
}

// Client posts audio bytes to the endpoint and parses chunked timestamps.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "huggingface", "validate", fmt.Errorf("api token is required"))
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		model := cfg.Model
		if model == "" {
			model = defaultModel
		}
		endpoint = "https://api-inference.huggingface.co/models/" + model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "huggingface"),
	}, nil
}

type inferenceResponse struct {
	Text   string `json:"text"`
	Chunks []struct {
		Text      string     `json:"text"`
		Timestamp [2]float64 `json:"timestamp"`
	} `json:"chunks"`
}

// Transcribe uploads the audio and returns the parsed result. onProgress
// receives coarse percentages and may be nil.
func (c *Client) Transcribe(ctx context.Context, path string, onProgress func(int)) (transcript.Result, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrValidation, "transcription", "huggingface", "read audio", err)
	}
	onProgress(10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(audio))
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "huggingface", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "audio/wav")
	onProgress(25)

	resp, err := c.client.Do(req)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "huggingface", "submit audio", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "huggingface", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := payload
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "huggingface", "submit audio",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	onProgress(85)

	var parsed inferenceResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "huggingface", "parse response", err)
	}

	result := transcript.Result{
		Text:        strings.TrimSpace(parsed.Text),
		Diarization: transcript.DiarizationNone,
	}
	for _, chunk := range parsed.Chunks {
		result.Segments = append(result.Segments, transcript.Segment{
			Text:  strings.TrimSpace(chunk.Text),
			Start: chunk.Timestamp[0],
			End:   chunk.Timestamp[1],
		})
	}
	if len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}
	onProgress(95)
	return result, nil
}
