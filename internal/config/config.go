package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Capability modes
const (
	ModeAuto = "auto"
	ModeLive = "live"
	ModeStub = "stub"
)

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Groq         GroqConfig
	Gemini       GeminiConfig
	Capabilities CapabilitiesConfig
	Timeouts     TimeoutsConfig
	Jobs         JobsConfig
	Limits       LimitsConfig
	Breaker      BreakerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	JobsPerMin  int
	QuickPerMin int
}

type GroqConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	STTModel string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// CapabilitiesConfig picks live adapters or local stubs per upstream.
// auto means live when an API key is present.
type CapabilitiesConfig struct {
	Inference string
	Vision    string
	Speech    string
}

// TimeoutsConfig values are milliseconds
type TimeoutsConfig struct {
	SpeechMs int
	TextMs   int
	VisualMs int
	JobMs    int
	StageMs  int
}

type JobsConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
}

type LimitsConfig struct {
	MaxImageBytes int
	MaxAudioBytes int
	BodyLimit     int
}

type BreakerConfig struct {
	Enabled      bool
	MinRequests  int
	FailureRatio float64
	OpenTimeout  time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("GEMINI_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.jobs_per_min", "RATELIMIT_JOBS_PER_MIN")
	_ = viper.BindEnv("ratelimit.quick_per_min", "RATELIMIT_QUICK_PER_MIN")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("groq.stt_model", "GROQ_STT_MODEL")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("capabilities.inference", "CAPABILITY_INFERENCE")
	_ = viper.BindEnv("capabilities.vision", "CAPABILITY_VISION")
	_ = viper.BindEnv("capabilities.speech", "CAPABILITY_SPEECH")
	_ = viper.BindEnv("timeouts.speech_ms", "TIMEOUT_SPEECH_MS")
	_ = viper.BindEnv("timeouts.text_ms", "TIMEOUT_TEXT_MS")
	_ = viper.BindEnv("timeouts.visual_ms", "TIMEOUT_VISUAL_MS")
	_ = viper.BindEnv("timeouts.job_ms", "TIMEOUT_JOB_MS")
	_ = viper.BindEnv("timeouts.stage_ms", "TIMEOUT_STAGE_MS")
	_ = viper.BindEnv("jobs.ttl", "JOBS_TTL")
	_ = viper.BindEnv("jobs.purge_interval", "JOBS_PURGE_INTERVAL")
	_ = viper.BindEnv("limits.max_image_bytes", "LIMITS_MAX_IMAGE_BYTES")
	_ = viper.BindEnv("limits.max_audio_bytes", "LIMITS_MAX_AUDIO_BYTES")
	_ = viper.BindEnv("limits.body_limit", "LIMITS_BODY_LIMIT")
	_ = viper.BindEnv("breaker.enabled", "BREAKER_ENABLED")
	_ = viper.BindEnv("breaker.min_requests", "BREAKER_MIN_REQUESTS")
	_ = viper.BindEnv("breaker.failure_ratio", "BREAKER_FAILURE_RATIO")
	_ = viper.BindEnv("breaker.open_timeout", "BREAKER_OPEN_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.jobs_per_min", 30)
	viper.SetDefault("ratelimit.quick_per_min", 120)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")
	viper.SetDefault("groq.stt_model", "whisper-large-v3-turbo")

	// Gemini defaults
	viper.SetDefault("gemini.model", "gemini-1.5-flash")

	viper.SetDefault("capabilities.inference", ModeAuto)
	viper.SetDefault("capabilities.vision", ModeAuto)
	viper.SetDefault("capabilities.speech", ModeAuto)

	// Deadlines
	viper.SetDefault("timeouts.speech_ms", 8000)
	viper.SetDefault("timeouts.text_ms", 15000)
	viper.SetDefault("timeouts.visual_ms", 25000)
	viper.SetDefault("timeouts.job_ms", 60000)
	viper.SetDefault("timeouts.stage_ms", 10000)

	viper.SetDefault("jobs.ttl", "1h")
	viper.SetDefault("jobs.purge_interval", "5m")

	viper.SetDefault("limits.max_image_bytes", 10<<20)
	viper.SetDefault("limits.max_audio_bytes", 25<<20)
	viper.SetDefault("limits.body_limit", 50<<20)

	viper.SetDefault("breaker.enabled", true)
	viper.SetDefault("breaker.min_requests", 5)
	viper.SetDefault("breaker.failure_ratio", 0.6)
	viper.SetDefault("breaker.open_timeout", "30s")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			JobsPerMin:  viper.GetInt("ratelimit.jobs_per_min"),
			QuickPerMin: viper.GetInt("ratelimit.quick_per_min"),
		},
		Groq: GroqConfig{
			APIKey:   viper.GetString("groq.api_key"),
			BaseURL:  viper.GetString("groq.base_url"),
			Model:    viper.GetString("groq.model"),
			STTModel: viper.GetString("groq.stt_model"),
		},
		Gemini: GeminiConfig{
			APIKey: viper.GetString("gemini.api_key"),
			Model:  viper.GetString("gemini.model"),
		},
		Capabilities: CapabilitiesConfig{
			Inference: strings.ToLower(viper.GetString("capabilities.inference")),
			Vision:    strings.ToLower(viper.GetString("capabilities.vision")),
			Speech:    strings.ToLower(viper.GetString("capabilities.speech")),
		},
		Timeouts: TimeoutsConfig{
			SpeechMs: viper.GetInt("timeouts.speech_ms"),
			TextMs:   viper.GetInt("timeouts.text_ms"),
			VisualMs: viper.GetInt("timeouts.visual_ms"),
			JobMs:    viper.GetInt("timeouts.job_ms"),
			StageMs:  viper.GetInt("timeouts.stage_ms"),
		},
		Jobs: JobsConfig{
			TTL:           viper.GetDuration("jobs.ttl"),
			PurgeInterval: viper.GetDuration("jobs.purge_interval"),
		},
		Limits: LimitsConfig{
			MaxImageBytes: viper.GetInt("limits.max_image_bytes"),
			MaxAudioBytes: viper.GetInt("limits.max_audio_bytes"),
			BodyLimit:     viper.GetInt("limits.body_limit"),
		},
		Breaker: BreakerConfig{
			Enabled:      viper.GetBool("breaker.enabled"),
			MinRequests:  viper.GetInt("breaker.min_requests"),
			FailureRatio: viper.GetFloat64("breaker.failure_ratio"),
			OpenTimeout:  viper.GetDuration("breaker.open_timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	for name, mode := range map[string]string{
		"inference": c.Capabilities.Inference,
		"vision":    c.Capabilities.Vision,
		"speech":    c.Capabilities.Speech,
	} {
		switch mode {
		case ModeAuto, ModeLive, ModeStub:
		default:
			return fmt.Errorf("capabilities.%s: unknown mode %q", name, mode)
		}
	}
	if c.Capabilities.Inference == ModeLive && c.Groq.APIKey == "" {
		return fmt.Errorf("capabilities.inference is live but GROQ_API_KEY is empty")
	}
	if c.Capabilities.Speech == ModeLive && c.Groq.APIKey == "" {
		return fmt.Errorf("capabilities.speech is live but GROQ_API_KEY is empty")
	}
	if c.Capabilities.Vision == ModeLive && c.Gemini.APIKey == "" {
		return fmt.Errorf("capabilities.vision is live but GEMINI_API_KEY is empty")
	}
	if c.Jobs.TTL <= 0 {
		return fmt.Errorf("jobs.ttl must be positive")
	}
	if c.Jobs.PurgeInterval <= 0 {
		return fmt.Errorf("jobs.purge_interval must be positive")
	}
	if c.Limits.MaxImageBytes <= 0 || c.Limits.MaxAudioBytes <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	return nil
}

// Live resolves a capability mode against key availability.
func Live(mode, apiKey string) bool {
	switch mode {
	case ModeLive:
		return true
	case ModeStub:
		return false
	default:
		return apiKey != ""
	}
}

// Durations converts the millisecond settings.
func (t TimeoutsConfig) Durations() (speech, text, visual, job, stage time.Duration) {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return ms(t.SpeechMs), ms(t.TextMs), ms(t.VisualMs), ms(t.JobMs), ms(t.StageMs)
}
