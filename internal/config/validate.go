package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownMethods = map[string]struct{}{
	"azure":         {},
	"whisper_local": {},
	"whisper_api":   {},
	"huggingface":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if _, ok := knownMethods[c.Processing.Method]; !ok {
		return fmt.Errorf("processing.method %q is not one of azure, whisper_local, whisper_api, huggingface", c.Processing.Method)
	}
	if c.Processing.Channels > 2 {
		return errors.New("processing.channels must be 1 or 2")
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.Processing.Method {
	case "azure":
		if strings.TrimSpace(c.Azure.SpeechKey) == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/meetscribe/config.toml"
			}
			return fmt.Errorf("azure.speech_key is required. Set AZURE_SPEECH_KEY env var or edit %s (create with 'meetscribe config init')", defaultPath)
		}
		if strings.TrimSpace(c.Azure.SpeechRegion) == "" && strings.TrimSpace(c.Azure.SpeechEndpoint) == "" {
			return errors.New("azure.speech_region or azure.speech_endpoint must be set")
		}
	case "whisper_api":
		if strings.TrimSpace(c.Whisper.APIKey) == "" {
			return errors.New("whisper.api_key is required when processing.method is whisper_api (or set OPENAI_API_KEY)")
		}
	case "huggingface":
		if strings.TrimSpace(c.HuggingFace.Token) == "" {
			return errors.New("huggingface.token is required when processing.method is huggingface (or set HF_TOKEN)")
		}
		if strings.TrimSpace(c.HuggingFace.Model) == "" && strings.TrimSpace(c.HuggingFace.Endpoint) == "" {
			return errors.New("huggingface.model or huggingface.endpoint must be set")
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrentJobs > 10 {
		return errors.New("workflow.max_concurrent_jobs must be between 1 and 10")
	}
	return ensurePositiveMap(map[string]int{
		"workflow.max_concurrent_jobs": c.Workflow.MaxConcurrentJobs,
		"workflow.analysis_workers":    c.Workflow.AnalysisWorkers,
		"workflow.job_timeout":         c.Workflow.JobTimeout,
		"azure.request_timeout":        c.Azure.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
