package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AZURE_SPEECH_KEY", "test-key")
	t.Setenv("AZURE_SPEECH_REGION", "eastus")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", resolved)
	}
	if cfg.Processing.Method != "azure" {
		t.Fatalf("default method = %q", cfg.Processing.Method)
	}
	if cfg.Processing.SampleRate != 16000 {
		t.Fatalf("default sample rate = %d", cfg.Processing.SampleRate)
	}
	if cfg.Workflow.MaxConcurrentJobs != 3 {
		t.Fatalf("default max concurrent = %d", cfg.Workflow.MaxConcurrentJobs)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"

[processing]
method = "whisper_api"
channels = 2

[whisper]
api_key = "sk-test"

[workflow]
max_concurrent_jobs = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Processing.Method != "whisper_api" {
		t.Fatalf("method = %q", cfg.Processing.Method)
	}
	if cfg.Processing.Channels != 2 {
		t.Fatalf("channels = %d", cfg.Processing.Channels)
	}
	if cfg.Workflow.MaxConcurrentJobs != 5 {
		t.Fatalf("max concurrent = %d", cfg.Workflow.MaxConcurrentJobs)
	}
	if cfg.Paths.StateDir != filepath.Join(dir, "state") {
		t.Fatalf("state dir = %q", cfg.Paths.StateDir)
	}
}

func TestValidateRejectsUnknownMethod(t *testing.T) {
	cfg := Default()
	cfg.Processing.Method = "assemblyai"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "processing.method") {
		t.Fatalf("expected method error, got %v", err)
	}
}

func TestValidateRequiresBackendCredentials(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "azure without key",
			mutate: func(c *Config) { c.Processing.Method = "azure"; c.Azure.SpeechKey = "" },
			want:   "azure.speech_key",
		},
		{
			name:   "whisper_api without key",
			mutate: func(c *Config) { c.Processing.Method = "whisper_api"; c.Whisper.APIKey = "" },
			want:   "whisper.api_key",
		},
		{
			name:   "huggingface without token",
			mutate: func(c *Config) { c.Processing.Method = "huggingface"; c.HuggingFace.Token = "" },
			want:   "huggingface.token",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateConcurrencyBounds(t *testing.T) {
	t.Setenv("AZURE_SPEECH_KEY", "test-key")
	cfg := Default()
	cfg.Azure.SpeechKey = "key"
	cfg.Azure.SpeechRegion = "eastus"
	cfg.Workflow.MaxConcurrentJobs = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_concurrent_jobs > 10")
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("ExpandPath(~/x) = %q", got)
	}
}
