package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeAzure()
	c.normalizeWhisper()
	c.normalizeHuggingFace()
	c.normalizeNLP()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	c.Processing.Method = strings.ToLower(strings.TrimSpace(c.Processing.Method))
	if c.Processing.Method == "" {
		c.Processing.Method = defaultMethod
	}
	c.Processing.Language = strings.TrimSpace(c.Processing.Language)
	if c.Processing.Language == "" {
		c.Processing.Language = defaultLanguage
	}
	if c.Processing.SampleRate <= 0 {
		c.Processing.SampleRate = defaultSampleRate
	}
	if c.Processing.Channels <= 0 {
		c.Processing.Channels = defaultChannels
	}
	if strings.TrimSpace(c.Processing.BitRate) == "" {
		c.Processing.BitRate = defaultBitRate
	}
	if c.Processing.MaxSpeakers <= 0 {
		c.Processing.MaxSpeakers = defaultMaxSpeakers
	}
}

func (c *Config) normalizeAzure() {
	if c.Azure.SpeechKey == "" {
		if value, ok := os.LookupEnv("AZURE_SPEECH_KEY"); ok {
			c.Azure.SpeechKey = value
		}
	}
	if c.Azure.SpeechRegion == "" {
		if value, ok := os.LookupEnv("AZURE_SPEECH_REGION"); ok {
			c.Azure.SpeechRegion = value
		}
	}
	if c.Azure.TextAnalyticsKey == "" {
		if value, ok := os.LookupEnv("AZURE_TEXT_ANALYTICS_KEY"); ok {
			c.Azure.TextAnalyticsKey = value
		}
	}
	c.Azure.SpeechEndpoint = strings.TrimRight(strings.TrimSpace(c.Azure.SpeechEndpoint), "/")
	c.Azure.TextAnalyticsEndpoint = strings.TrimRight(strings.TrimSpace(c.Azure.TextAnalyticsEndpoint), "/")
	if c.Azure.RequestTimeout <= 0 {
		c.Azure.RequestTimeout = defaultAzureTimeout
	}
}

func (c *Config) normalizeWhisper() {
	if strings.TrimSpace(c.Whisper.Binary) == "" {
		c.Whisper.Binary = defaultWhisperBinary
	}
	if strings.TrimSpace(c.Whisper.Model) == "" {
		c.Whisper.Model = defaultWhisperModel
	}
	c.Whisper.BaseURL = strings.TrimRight(strings.TrimSpace(c.Whisper.BaseURL), "/")
	if c.Whisper.BaseURL == "" {
		c.Whisper.BaseURL = defaultWhisperBaseURL
	}
	if c.Whisper.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Whisper.APIKey = value
		}
	}
}

func (c *Config) normalizeHuggingFace() {
	if c.HuggingFace.Token == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.HuggingFace.Token = value
		}
	}
	c.HuggingFace.Endpoint = strings.TrimRight(strings.TrimSpace(c.HuggingFace.Endpoint), "/")
}

func (c *Config) normalizeNLP() {
	if c.NLP.SummarySentences <= 0 {
		c.NLP.SummarySentences = defaultSummarySentences
	}
	if c.NLP.SentimentThreshold <= 0 || c.NLP.SentimentThreshold > 1 {
		c.NLP.SentimentThreshold = defaultSentimentCutoff
	}
	if c.NLP.MaxKeyPhrases <= 0 {
		c.NLP.MaxKeyPhrases = defaultMaxKeyPhrases
	}
	if c.NLP.MaxActionItems <= 0 {
		c.NLP.MaxActionItems = defaultMaxActionItems
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Workflow.AnalysisWorkers <= 0 {
		c.Workflow.AnalysisWorkers = defaultAnalysisWorkers
	}
	if c.Workflow.JobTimeout <= 0 {
		c.Workflow.JobTimeout = defaultJobTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
