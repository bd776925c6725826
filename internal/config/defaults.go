package config

const (
	defaultDataDir  = "~/.local/share/dubcast"
	defaultRunsDir  = "~/.local/share/dubcast/runs"
	defaultAssetDir = "~/.local/share/dubcast/assets"
	defaultLogDir   = "~/.local/share/dubcast/logs"
	defaultAPIBind  = "127.0.0.1:8316"

	defaultMaxQueue      = 10
	defaultMaxConcurrent = 1
	defaultLanguage      = "Chinese"
	defaultSpeed         = 1.0

	defaultServiceTimeoutSeconds = 600

	defaultMediaBaseURL     = "http://127.0.0.1:9101"
	defaultASRBaseURL       = "http://127.0.0.1:9102"
	defaultTranslateBaseURL = "http://127.0.0.1:9103"
	defaultTTSBaseURL       = "http://127.0.0.1:9104"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// MaxConcurrentLimit caps the scheduler's configurable concurrency.
const MaxConcurrentLimit = 5

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			RunsDir:  defaultRunsDir,
			AssetDir: defaultAssetDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Pipeline: Pipeline{
			MaxQueue:        defaultMaxQueue,
			ParallelEnabled: false,
			MaxConcurrent:   defaultMaxConcurrent,
			DefaultLanguage: defaultLanguage,
			DefaultSpeed:    defaultSpeed,
		},
		Services: Services{
			Media:     Service{BaseURL: defaultMediaBaseURL, TimeoutSeconds: defaultServiceTimeoutSeconds},
			ASR:       Service{BaseURL: defaultASRBaseURL, TimeoutSeconds: defaultServiceTimeoutSeconds},
			Translate: Service{BaseURL: defaultTranslateBaseURL, TimeoutSeconds: defaultServiceTimeoutSeconds},
			TTS:       Service{BaseURL: defaultTTSBaseURL, TimeoutSeconds: defaultServiceTimeoutSeconds},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
