package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	UploadDir string `toml:"upload_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Processing contains default job options applied when a request omits them.
type Processing struct {
	Method             string   `toml:"method"`
	Language           string   `toml:"language"`
	LanguageCandidates []string `toml:"language_candidates"`
	SampleRate         int      `toml:"sample_rate"`
	Channels           int      `toml:"channels"`
	BitRate            string   `toml:"bit_rate"`
	NoiseReduction     bool     `toml:"noise_reduction"`
	EnableDiarization  bool     `toml:"enable_diarization"`
	MaxSpeakers        int      `toml:"max_speakers"`
	EnableNLP          bool     `toml:"enable_nlp"`
	ProfanityFilter    bool     `toml:"profanity_filter"`
	WordTimestamps     bool     `toml:"word_timestamps"`
}

// Azure contains credentials for the Azure Speech and Text Analytics services.
type Azure struct {
	SpeechKey             string `toml:"speech_key"`
	SpeechRegion          string `toml:"speech_region"`
	SpeechEndpoint        string `toml:"speech_endpoint"`
	TextAnalyticsKey      string `toml:"text_analytics_key"`
	TextAnalyticsEndpoint string `toml:"text_analytics_endpoint"`
	RequestTimeout        int    `toml:"request_timeout"`
}

// Whisper contains configuration for the local Whisper CLI and the
// OpenAI-compatible Whisper API backend.
type Whisper struct {
	Binary      string  `toml:"binary"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Temperature float64 `toml:"temperature"`
	Prompt      string  `toml:"prompt"`
}

// HuggingFace contains configuration for inference-endpoint transcription.
type HuggingFace struct {
	Token    string `toml:"token"`
	Model    string `toml:"model"`
	Endpoint string `toml:"endpoint"`
}

// NLP contains analysis tuning knobs.
type NLP struct {
	SummarySentences   int     `toml:"summary_sentences"`
	SentimentThreshold float64 `toml:"sentiment_threshold"`
	MaxKeyPhrases      int     `toml:"max_key_phrases"`
	MaxActionItems     int     `toml:"max_action_items"`
}

// Workflow contains concurrency limits and timeouts for pipeline execution.
type Workflow struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	AnalysisWorkers   int `toml:"analysis_workers"`
	JobTimeout        int `toml:"job_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications configures push notifications for finished jobs. Meetscribe
// publishes to an ntfy topic URL; an empty topic disables notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for meetscribe.
//
// Configuration sections by subsystem:
//   - Paths: state, upload, and scratch directories plus API bind address
//   - Processing: per-job option defaults (method, audio params, toggles)
//   - Azure: Speech and Text Analytics credentials
//   - Whisper: local CLI and API backend settings
//   - HuggingFace: inference endpoint settings
//   - NLP: analysis tuning
//   - Workflow: concurrency limits and timeouts
//   - Logging: log format and level
//   - Notifications: ntfy push notifications
type Config struct {
	Paths         Paths         `toml:"paths"`
	Processing    Processing    `toml:"processing"`
	Azure         Azure         `toml:"azure"`
	Whisper       Whisper       `toml:"whisper"`
	HuggingFace   HuggingFace   `toml:"huggingface"`
	NLP           NLP           `toml:"nlp"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meetscribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.UploadDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio normalization.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// JobStorePath returns the location of the job snapshot file.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
