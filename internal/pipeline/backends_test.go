package pipeline

import (
	"errors"
	"testing"

	"meetscribe/internal/config"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

func factoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Azure.SpeechKey = "speech-key"
	cfg.Azure.SpeechRegion = "eastus"
	cfg.Whisper.APIKey = "openai-key"
	cfg.HuggingFace.Token = "hf-token"
	return &cfg
}

func TestFactoryUnknownMethod(t *testing.T) {
	factory := NewConfigFactory(factoryConfig(), logging.NewNop())
	_, err := factory.For(jobs.Options{Method: "carrier_pigeon"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestFactoryAzureBackends(t *testing.T) {
	factory := NewConfigFactory(factoryConfig(), logging.NewNop())
	backends, err := factory.For(jobs.Options{
		Method:            MethodAzure,
		EnableDiarization: true,
		EnableNLP:         true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if backends.Transcriber == nil || backends.Diarizer == nil {
		t.Error("azure must provide transcriber and diarizer")
	}
	if backends.Analyzer == nil {
		t.Error("analyzer missing with NLP enabled")
	}
}

func TestFactoryWhisperFallsBackToAzureDiarizer(t *testing.T) {
	factory := NewConfigFactory(factoryConfig(), logging.NewNop())
	backends, err := factory.For(jobs.Options{
		Method:            MethodWhisperLocal,
		EnableDiarization: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if backends.Diarizer == nil {
		t.Error("whisper jobs should use azure for the separate diarization pass")
	}
	if backends.Analyzer != nil {
		t.Error("analyzer present with NLP disabled")
	}
}

func TestFactoryWhisperNoAzureNoDiarizer(t *testing.T) {
	cfg := factoryConfig()
	cfg.Azure.SpeechKey = ""
	factory := NewConfigFactory(cfg, logging.NewNop())
	backends, err := factory.For(jobs.Options{
		Method:            MethodWhisperLocal,
		EnableDiarization: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if backends.Diarizer != nil {
		t.Error("diarizer available without azure credentials")
	}
}

func TestLocaleResolution(t *testing.T) {
	tests := []struct {
		name string
		opts jobs.Options
		want string
	}{
		{"default", jobs.Options{}, "en-US"},
		{"bare code", jobs.Options{Language: "es"}, "es-ES"},
		{"word form", jobs.Options{Language: "japanese"}, "ja-JP"},
		{"unsupported falls back", jobs.Options{Language: "tlh"}, "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := locales(tt.opts)[0]; got != tt.want {
				t.Errorf("locales(%+v)[0] = %q, want %q", tt.opts, got, tt.want)
			}
		})
	}
}

func TestBaseLanguage(t *testing.T) {
	if got := baseLanguage(jobs.Options{Language: "en-GB"}); got != "en" {
		t.Errorf("baseLanguage = %q", got)
	}
}
