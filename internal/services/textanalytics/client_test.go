package textanalytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"meetscribe/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{Endpoint: server.URL, Key: "test-key"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "", Key: "k"}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing endpoint: %v", err)
	}
	if _, err := NewClient(Config{Endpoint: "http://x", Key: ""}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key: %v", err)
	}
}

func TestKeyPhrases(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text/analytics/v3.1/keyPhrases" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Error("missing subscription key header")
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Documents) != 1 || req.Documents[0].ID != "0" {
			t.Errorf("documents = %+v", req.Documents)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"documents":[{"id":"0","keyPhrases":["roadmap","budget"]}]}`))
	})

	phrases, err := client.KeyPhrases(context.Background(), "the roadmap and the budget")
	if err != nil {
		t.Fatalf("KeyPhrases: %v", err)
	}
	if len(phrases) != 2 || phrases[0] != "roadmap" {
		t.Fatalf("phrases = %v", phrases)
	}
}

func TestSentimentAlignsByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Second document dropped, order reversed.
		w.Write([]byte(`{"documents":[
			{"id":"2","sentiment":"negative","confidenceScores":{"positive":0.1,"neutral":0.1,"negative":0.8}},
			{"id":"0","sentiment":"positive","confidenceScores":{"positive":0.9,"neutral":0.05,"negative":0.05}}
		]}`))
	})

	scores, err := client.Sentiment(context.Background(), []string{"great", "meh", "awful"})
	if err != nil {
		t.Fatalf("Sentiment: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("len = %d", len(scores))
	}
	if scores[0].Overall != "positive" || scores[2].Overall != "negative" {
		t.Fatalf("scores = %+v", scores)
	}
	if scores[1].Overall != "neutral" || scores[1].Neutral != 1 {
		t.Fatalf("gap should default neutral: %+v", scores[1])
	}
}

func TestEntities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[{"id":"0","entities":[
			{"text":"Contoso","category":"Organization","confidenceScore":0.95}
		]}]}`))
	})

	entities, err := client.Entities(context.Background(), "Contoso shipped it")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(entities) != 1 || entities[0].Category != "Organization" {
		t.Fatalf("entities = %+v", entities)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})
	if _, err := client.KeyPhrases(context.Background(), "x"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
