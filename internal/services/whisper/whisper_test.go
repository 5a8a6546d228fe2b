package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

func TestLocalTranscribeParsesOutput(t *testing.T) {
	workDir := t.TempDir()
	audio := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	local := NewLocal("whisper", workDir, logging.NewNop())
	var gotArgs []string
	local.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotArgs = append([]string{name}, args...)
		output := localOutput{Text: " hello world ", Language: "en"}
		output.Segments = []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		}{
			{Start: 0, End: 2.5, Text: " hello "},
			{Start: 2.5, End: 4, Text: " world "},
		}
		data, err := json.Marshal(output)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(workDir, "meeting.json"), data, 0o644)
	})

	var progress []int
	result, err := local.Transcribe(context.Background(), audio, LocalOptions{Model: "small", Language: "en"}, func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("text = %q", result.Text)
	}
	if len(result.Segments) != 2 || result.Segments[1].Text != "world" {
		t.Errorf("segments = %+v", result.Segments)
	}
	if result.Duration != 4 {
		t.Errorf("duration = %v", result.Duration)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 95 {
		t.Errorf("progress = %v", progress)
	}

	assertArg := func(flag, want string) {
		t.Helper()
		for i, arg := range gotArgs {
			if arg == flag && i+1 < len(gotArgs) {
				if gotArgs[i+1] != want {
					t.Errorf("%s = %q, want %q", flag, gotArgs[i+1], want)
				}
				return
			}
		}
		t.Errorf("missing %s in %v", flag, gotArgs)
	}
	assertArg("--model", "small")
	assertArg("--language", "en")
	assertArg("--output_format", "json")
	assertArg("--output_dir", workDir)
}

func TestLocalTranscribeCommandFailure(t *testing.T) {
	local := NewLocal("whisper", t.TempDir(), logging.NewNop())
	local.WithCommandRunner(func(_ context.Context, _ string, _ ...string) error {
		return errors.New("model download failed")
	})
	_, err := local.Transcribe(context.Background(), "meeting.wav", LocalOptions{}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want ErrExternalTool", err)
	}
}

func TestAPIClientRequiresKey(t *testing.T) {
	if _, err := NewAPIClient(APIConfig{}, logging.NewNop()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestAPITranscribe(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "status update",
			"language": "english",
			"duration": 6.0,
			"segments": []map[string]any{
				{"start": 0.0, "end": 3.0, "text": "status"},
				{"start": 3.0, "end": 6.0, "text": "update"},
			},
		})
	}))
	defer server.Close()

	client, err := NewAPIClient(APIConfig{BaseURL: server.URL, Key: "secret"}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Transcribe(context.Background(), audio, LocalOptions{}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "status update" || result.Duration != 6 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Segments) != 2 {
		t.Errorf("segments = %+v", result.Segments)
	}
}

func TestAPITranscribeServerError(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewAPIClient(APIConfig{BaseURL: server.URL, Key: "secret"}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Transcribe(context.Background(), audio, LocalOptions{}, nil); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}
