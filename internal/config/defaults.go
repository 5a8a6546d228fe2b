package config

const (
	defaultStateDir          = "~/.local/share/meetscribe/state"
	defaultUploadDir         = "~/.local/share/meetscribe/uploads"
	defaultWorkDir           = "~/.local/share/meetscribe/work"
	defaultLogDir            = "~/.local/share/meetscribe/logs"
	defaultAPIBind           = "127.0.0.1:7823"
	defaultMethod            = "azure"
	defaultLanguage          = "en-US"
	defaultSampleRate        = 16000
	defaultChannels          = 1
	defaultBitRate           = "32k"
	defaultMaxSpeakers       = 10
	defaultAzureTimeout      = 300
	defaultWhisperBinary     = "whisper"
	defaultWhisperModel      = "whisper-1"
	defaultWhisperBaseURL    = "https://api.openai.com/v1"
	defaultSummarySentences  = 3
	defaultSentimentCutoff   = 0.6
	defaultMaxKeyPhrases     = 20
	defaultMaxActionItems    = 10
	defaultMaxConcurrentJobs = 3
	defaultAnalysisWorkers   = 6
	defaultJobTimeout        = 3600
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultNtfyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			UploadDir: defaultUploadDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Processing: Processing{
			Method:            defaultMethod,
			Language:          defaultLanguage,
			SampleRate:        defaultSampleRate,
			Channels:          defaultChannels,
			BitRate:           defaultBitRate,
			EnableDiarization: true,
			MaxSpeakers:       defaultMaxSpeakers,
			EnableNLP:         true,
		},
		Azure: Azure{
			RequestTimeout: defaultAzureTimeout,
		},
		Whisper: Whisper{
			Binary:  defaultWhisperBinary,
			Model:   defaultWhisperModel,
			BaseURL: defaultWhisperBaseURL,
		},
		NLP: NLP{
			SummarySentences:   defaultSummarySentences,
			SentimentThreshold: defaultSentimentCutoff,
			MaxKeyPhrases:      defaultMaxKeyPhrases,
			MaxActionItems:     defaultMaxActionItems,
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			AnalysisWorkers:   defaultAnalysisWorkers,
			JobTimeout:        defaultJobTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
