package textanalytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetscribe/internal/analysis"
	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

const apiVersion = "v3.1"

// Azure Text Analytics truncates documents past this length, so we do it
// first and keep requests predictable.
const maxDocumentLength = 5120

// Config holds connection settings for the Text Analytics endpoint.
type Config struct {
	Endpoint string
	Key      string
	Language string
	Timeout  time.Duration
}

// Client calls the Azure Text Analytics REST API. It implements
// analysis.TextClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a Text Analytics client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "nlp", "text analytics", "endpoint required", nil)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "nlp", "text analytics", "key required", nil)
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewComponentLogger(logger, "textanalytics"),
	}, nil
}

type document struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type request struct {
	Documents []document `json:"documents"`
}

// KeyPhrases extracts key phrases from the given text.
func (c *Client) KeyPhrases(ctx context.Context, text string) ([]string, error) {
	var payload struct {
		Documents []struct {
			ID         string   `json:"id"`
			KeyPhrases []string `json:"keyPhrases"`
		} `json:"documents"`
	}
	if err := c.post(ctx, "/text/analytics/"+apiVersion+"/keyPhrases", []string{text}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Documents) == 0 {
		return nil, nil
	}
	return payload.Documents[0].KeyPhrases, nil
}

// Sentiment scores each document and returns results aligned by index.
func (c *Client) Sentiment(ctx context.Context, docs []string) ([]analysis.SentimentScore, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	var payload struct {
		Documents []struct {
			ID               string `json:"id"`
			Sentiment        string `json:"sentiment"`
			ConfidenceScores struct {
				Positive float64 `json:"positive"`
				Neutral  float64 `json:"neutral"`
				Negative float64 `json:"negative"`
			} `json:"confidenceScores"`
		} `json:"documents"`
	}
	if err := c.post(ctx, "/text/analytics/"+apiVersion+"/sentiment", docs, &payload); err != nil {
		return nil, err
	}

	// Responses may omit or reorder documents; align by the numeric ID we
	// assigned on the way out and default the gaps to neutral.
	out := make([]analysis.SentimentScore, len(docs))
	for i := range out {
		out[i] = analysis.NeutralSentiment()
	}
	for _, doc := range payload.Documents {
		index, err := strconv.Atoi(doc.ID)
		if err != nil || index < 0 || index >= len(out) {
			continue
		}
		out[index] = analysis.SentimentScore{
			Positive: doc.ConfidenceScores.Positive,
			Neutral:  doc.ConfidenceScores.Neutral,
			Negative: doc.ConfidenceScores.Negative,
			Overall:  doc.Sentiment,
		}
	}
	return out, nil
}

// Entities recognizes named entities in the given text.
func (c *Client) Entities(ctx context.Context, text string) ([]analysis.Entity, error) {
	var payload struct {
		Documents []struct {
			ID       string `json:"id"`
			Entities []struct {
				Text            string  `json:"text"`
				Category        string  `json:"category"`
				ConfidenceScore float64 `json:"confidenceScore"`
			} `json:"entities"`
		} `json:"documents"`
	}
	if err := c.post(ctx, "/text/analytics/"+apiVersion+"/entities/recognition/general", []string{text}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Documents) == 0 {
		return nil, nil
	}
	entities := make([]analysis.Entity, 0, len(payload.Documents[0].Entities))
	for _, entity := range payload.Documents[0].Entities {
		entities = append(entities, analysis.Entity{
			Text:       entity.Text,
			Category:   entity.Category,
			Confidence: entity.ConfidenceScore,
		})
	}
	return entities, nil
}

func (c *Client) post(ctx context.Context, path string, docs []string, out any) error {
	req := request{Documents: make([]document, 0, len(docs))}
	for i, text := range docs {
		if len(text) > maxDocumentLength {
			text = text[:maxDocumentLength]
		}
		if strings.TrimSpace(text) == "" {
			text = " "
		}
		req.Documents = append(req.Documents, document{
			ID:       strconv.Itoa(i),
			Language: c.cfg.Language,
			Text:     text,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "nlp", "text analytics", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrTransient, "nlp", "text analytics", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrTransient, "nlp", "text analytics", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrTransient, "nlp", "text analytics",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "nlp", "text analytics", "decode response", err)
	}
	return nil
}
