package azurespeech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"meetscribe/internal/services"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{Key: "test-key", Endpoint: server.URL}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Region: "eastus"}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key: %v", err)
	}
	if _, err := NewClient(Config{Key: "k"}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing region and endpoint: %v", err)
	}
	if _, err := NewClient(Config{Key: "k", Region: "eastus"}, nil); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestTranscribeInlineDiarization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speechtotext/transcriptions:transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Error("missing subscription key")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		var definition transcribeDefinition
		if err := json.Unmarshal([]byte(r.FormValue("definition")), &definition); err != nil {
			t.Errorf("definition: %v", err)
		}
		if definition.Diarization == nil || !definition.Diarization.Enabled {
			t.Error("diarization not requested")
		}
		if definition.Diarization.MaxSpeakers != 4 {
			t.Errorf("max speakers = %d", definition.Diarization.MaxSpeakers)
		}
		w.Write([]byte(`{
			"durationMilliseconds": 60000,
			"combinedPhrases": [{"text": "hello there. how are you."}],
			"phrases": [
				{"offsetMilliseconds": 0, "durationMilliseconds": 2000, "text": "hello there.", "speaker": 1, "confidence": 0.95, "locale": "en-US"},
				{"offsetMilliseconds": 2000, "durationMilliseconds": 2500, "text": "how are you.", "speaker": 2, "confidence": 0.91, "locale": "en-US"}
			]
		}`))
	})

	var progress []int
	result, err := client.Transcribe(context.Background(), writeTestAudio(t), TranscribeOptions{
		Locales:     []string{"en-US"},
		Diarization: true,
		MaxSpeakers: 4,
	}, func(pct int) { progress = append(progress, pct) })
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if result.Text != "hello there. how are you." {
		t.Fatalf("text = %q", result.Text)
	}
	if result.Duration != 60 {
		t.Fatalf("duration = %v", result.Duration)
	}
	if result.Language != "en-US" {
		t.Fatalf("language = %q", result.Language)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %+v", result.Segments)
	}
	if result.Segments[0].Speaker != "Speaker 1" || result.Segments[1].Speaker != "Speaker 2" {
		t.Fatalf("inline speakers = %+v", result.Segments)
	}
	if result.Diarization != "inline" {
		t.Fatalf("diarization = %q", result.Diarization)
	}
	if result.SpeakerCount != 2 {
		t.Fatalf("speaker count = %d", result.SpeakerCount)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 95 {
		t.Fatalf("progress = %v", progress)
	}
}

func TestDiarizeFast(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"phrases": [
				{"offsetMilliseconds": 0, "durationMilliseconds": 3000, "text": "a", "speaker": 1},
				{"offsetMilliseconds": 3000, "durationMilliseconds": 1000, "text": "b", "speaker": 2},
				{"offsetMilliseconds": 4000, "durationMilliseconds": 500, "text": "noise"}
			]
		}`))
	})

	turns, err := client.DiarizeFast(context.Background(), writeTestAudio(t), 4, nil, nil)
	if err != nil {
		t.Fatalf("DiarizeFast: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].Speaker != "Speaker 1" || turns[0].End != 3 {
		t.Fatalf("turn 0 = %+v", turns[0])
	}
}

func TestDiarizeFastNoTurnsIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"phrases": []}`))
	})
	if _, err := client.DiarizeFast(context.Background(), writeTestAudio(t), 4, nil, nil); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDiarizeRealtime(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech/recognition/conversation/cognitiveservices/v1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("diarizationEnabled"); got != "true" {
			t.Errorf("diarizationEnabled = %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "en-US" {
			t.Errorf("language = %q", got)
		}
		w.Write([]byte(`{
			"RecognitionStatus": "Success",
			"Phrases": [
				{"Speaker": 1, "Offset": 0, "Duration": 30000000, "Display": "a"},
				{"Speaker": 2, "Offset": 30000000, "Duration": 20000000, "Display": "b"}
			]
		}`))
	})

	turns, err := client.DiarizeRealtime(context.Background(), writeTestAudio(t), "en-US", nil)
	if err != nil {
		t.Fatalf("DiarizeRealtime: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].End != 3 || turns[1].Start != 3 {
		t.Fatalf("tick conversion wrong: %+v", turns)
	}
}

func TestDiarizeRealtimeFailureStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"RecognitionStatus": "InitialSilenceTimeout"}`))
	})
	if _, err := client.DiarizeRealtime(context.Background(), writeTestAudio(t), "", nil); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTranscribeServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	})
	if _, err := client.Transcribe(context.Background(), writeTestAudio(t), TranscribeOptions{}, nil); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
