package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/interview-coach/internal/llm"
)

// EnvPrefix is the namespace prefix for all Interview Coach environment variables.
const EnvPrefix = "INTERVIEW_COACH_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
// Durations are kept as strings and parsed by the accessor methods, which
// fall back to the default on an invalid value.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	Log        LogConfig      `yaml:"log"`
	LLM        LLMConfig      `yaml:"llm"`
	Deepgram   DeepgramConfig `yaml:"deepgram"`
	Silence    SilenceConfig  `yaml:"silence"`
	Stream     StreamConfig   `yaml:"stream"`
	Session    SessionConfig  `yaml:"session"`
	Archive    ArchiveConfig  `yaml:"archive"`
	Breaker    BreakerConfig  `yaml:"breaker"`
	Metrics    MetricsConfig  `yaml:"metrics"`

	// Secrets: env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LLMConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type DeepgramConfig struct {
	Model          string   `yaml:"model"`
	Language       string   `yaml:"language"`
	EndpointingMs  int      `yaml:"endpointing_ms"`
	UtteranceEndMs int      `yaml:"utterance_end_ms"`
	Keywords       []string `yaml:"keywords"`
}

type SilenceConfig struct {
	CheckInterval string `yaml:"check_interval"`
	Threshold     string `yaml:"threshold"`
	Warmup        string `yaml:"warmup"`
}

type StreamConfig struct {
	RestartGrace string `yaml:"restart_grace"`
	StopGrace    string `yaml:"stop_grace"`
}

type SessionConfig struct {
	Tick            string `yaml:"tick"`
	DefaultMinutes  int    `yaml:"default_minutes"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// ArchiveConfig turns on the optional outputs. Each is off while its path
// is empty.
type ArchiveConfig struct {
	DBPath                string `yaml:"db_path"`
	ReportDir             string `yaml:"report_dir"`
	AudioDir              string `yaml:"audio_dir"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
}

type BreakerConfig struct {
	MaxFailures  int    `yaml:"max_failures"`
	ResetTimeout string `yaml:"reset_timeout"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		Log:        LogConfig{Level: "info", Format: "text"},
		LLM:        LLMConfig{Model: "gemini/gemini-2.5-flash", Timeout: "20s"},
		Deepgram: DeepgramConfig{
			Model:          "nova-2",
			Language:       "en-US",
			EndpointingMs:  1500,
			UtteranceEndMs: 2500,
		},
		Silence: SilenceConfig{CheckInterval: "3s", Threshold: "15s", Warmup: "10s"},
		Stream:  StreamConfig{RestartGrace: "600ms", StopGrace: "500ms"},
		Session: SessionConfig{Tick: "1s", DefaultMinutes: 20, ShutdownTimeout: "30s"},
		Archive: ArchiveConfig{GoogleCredentialsFile: "./service-account.json"},
		Breaker: BreakerConfig{MaxFailures: 5, ResetTimeout: "30s"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) LLMTimeout() time.Duration { return parsedDuration(c.LLM.Timeout, 20*time.Second) }
func (c *Config) SilenceInterval() time.Duration { return parsedDuration(c.Silence.CheckInterval, 3*time.Second) }
func (c *Config) SilenceThreshold() time.Duration { return parsedDuration(c.Silence.Threshold, 15*time.Second) }
func (c *Config) SilenceWarmup() time.Duration { return parsedDuration(c.Silence.Warmup, 10*time.Second) }
func (c *Config) RestartGrace() time.Duration { return parsedDuration(c.Stream.RestartGrace, 600*time.Millisecond) }
func (c *Config) StopGrace() time.Duration { return parsedDuration(c.Stream.StopGrace, 500*time.Millisecond) }
func (c *Config) Tick() time.Duration { return parsedDuration(c.Session.Tick, time.Second) }
func (c *Config) ShutdownTimeout() time.Duration { return parsedDuration(c.Session.ShutdownTimeout, 30*time.Second) }
func (c *Config) BreakerReset() time.Duration { return parsedDuration(c.Breaker.ResetTimeout, 30*time.Second) }

// LLMAPIKey returns the secret for the provider named in llm.model, or ""
// when the model string is invalid.
func (c *Config) LLMAPIKey() string {
	provider, _, err := llm.ParseModel(c.LLM.Model)
	if err != nil {
		return ""
	}
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func parsedDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	textVars := []struct {
		key string
		dst *string
	}{
		{"LISTEN_ADDR", &cfg.ListenAddr},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"LLM_MODEL", &cfg.LLM.Model},
		{"LLM_BASE_URL", &cfg.LLM.BaseURL},
		{"LLM_TIMEOUT", &cfg.LLM.Timeout},
		{"DEEPGRAM_MODEL", &cfg.Deepgram.Model},
		{"DEEPGRAM_LANGUAGE", &cfg.Deepgram.Language},
		{"SILENCE_CHECK_INTERVAL", &cfg.Silence.CheckInterval},
		{"SILENCE_THRESHOLD", &cfg.Silence.Threshold},
		{"SILENCE_WARMUP", &cfg.Silence.Warmup},
		{"STREAM_RESTART_GRACE", &cfg.Stream.RestartGrace},
		{"STREAM_STOP_GRACE", &cfg.Stream.StopGrace},
		{"SESSION_TICK", &cfg.Session.Tick},
		{"SESSION_SHUTDOWN_TIMEOUT", &cfg.Session.ShutdownTimeout},
		{"ARCHIVE_DB_PATH", &cfg.Archive.DBPath},
		{"ARCHIVE_REPORT_DIR", &cfg.Archive.ReportDir},
		{"ARCHIVE_AUDIO_DIR", &cfg.Archive.AudioDir},
		{"GDRIVE_FOLDER_ID", &cfg.Archive.GDriveFolderID},
		{"GOOGLE_CREDENTIALS_FILE", &cfg.Archive.GoogleCredentialsFile},
		{"BREAKER_RESET_TIMEOUT", &cfg.Breaker.ResetTimeout},
	}
	for _, tv := range textVars {
		if v := os.Getenv(EnvPrefix + tv.key); v != "" {
			*tv.dst = v
		}
	}

	intVars := []struct {
		key string
		dst *int
	}{
		{"DEEPGRAM_ENDPOINTING_MS", &cfg.Deepgram.EndpointingMs},
		{"DEEPGRAM_UTTERANCE_END_MS", &cfg.Deepgram.UtteranceEndMs},
		{"SESSION_DEFAULT_MINUTES", &cfg.Session.DefaultMinutes},
		{"BREAKER_MAX_FAILURES", &cfg.Breaker.MaxFailures},
	}
	for _, iv := range intVars {
		if v := os.Getenv(EnvPrefix + iv.key); v != "" {
			if n, err := strconv.Atoi(trim(v)); err == nil && n > 0 {
				*iv.dst = n
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "DEEPGRAM_KEYWORDS"); v != "" {
		cfg.Deepgram.Keywords = parseList(v)
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(trim(v)); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured: voice streams are disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}

	provider, _, err := llm.ParseModel(cfg.LLM.Model)
	switch {
	case err != nil:
		warnings = append(warnings, fmt.Sprintf("Invalid llm.model %q: collaborators fall back to defaults.", cfg.LLM.Model))
	case cfg.LLMAPIKey() == "":
		warnings = append(warnings, fmt.Sprintf("No LLM key for provider %q: collaborators fall back to defaults. Set %s%s_API_KEY.",
			provider, EnvPrefix, strings.ToUpper(provider)))
	}

	durations := []struct {
		name  string
		value string
		def   string
	}{
		{"llm.timeout", cfg.LLM.Timeout, "20s"},
		{"silence.check_interval", cfg.Silence.CheckInterval, "3s"},
		{"silence.threshold", cfg.Silence.Threshold, "15s"},
		{"silence.warmup", cfg.Silence.Warmup, "10s"},
		{"stream.restart_grace", cfg.Stream.RestartGrace, "600ms"},
		{"stream.stop_grace", cfg.Stream.StopGrace, "500ms"},
		{"session.tick", cfg.Session.Tick, "1s"},
		{"session.shutdown_timeout", cfg.Session.ShutdownTimeout, "30s"},
		{"breaker.reset_timeout", cfg.Breaker.ResetTimeout, "30s"},
	}
	for _, d := range durations {
		if parsed, err := time.ParseDuration(trim(d.value)); err != nil || parsed <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q: using default %s.", d.name, d.value, d.def))
		}
	}

	if cfg.Session.DefaultMinutes <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid session.default_minutes %d: using default 20.", cfg.Session.DefaultMinutes))
		cfg.Session.DefaultMinutes = 20
	}
	if cfg.Archive.GDriveFolderID != "" && cfg.Archive.ReportDir == "" {
		warnings = append(warnings, "archive.gdrive_folder_id is set without archive.report_dir: reports are not uploaded.")
	}

	return warnings
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := trim(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
