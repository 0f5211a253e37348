package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Gemini    GeminiConfig
	DashScope DashScopeConfig
	Pipeline  PipelineConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
	ExportPath     string   `mapstructure:"export_path"`
}

// GeminiConfig holds Gemini / Vertex AI configuration
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	BaseURL         string  `mapstructure:"base_url"`
	Backend         string  `mapstructure:"backend"` // "gemini" or "vertex"
	Project         string  `mapstructure:"project"`
	Location        string  `mapstructure:"location"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

// DashScopeConfig holds Qwen (DashScope) configuration
type DashScopeConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	VisionURL   string `mapstructure:"vision_url"`
	VisionModel string `mapstructure:"vision_model"`
	TextModel   string `mapstructure:"text_model"`
}

// PipelineConfig selects the extraction backend variants
type PipelineConfig struct {
	ImageVariant       string `mapstructure:"image_variant"` // "structured" or "two_stage"
	ImageProvider      string `mapstructure:"image_provider"`
	ReaderProvider     string `mapstructure:"reader_provider"`
	StructurerProvider string `mapstructure:"structurer_provider"`
	AudioProvider      string `mapstructure:"audio_provider"`
}

// RetryConfig holds rate-limit retry configuration
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// RateLimitConfig holds outbound rate limiting configuration
type RateLimitConfig struct {
	ProviderRPS   float64 `mapstructure:"provider_rps"`
	ProviderBurst int     `mapstructure:"provider_burst"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Provider names accepted by the pipeline section
const (
	ProviderGemini    = "gemini"
	ProviderDashScope = "dashscope"

	VariantStructured = "structured"
	VariantTwoStage   = "two_stage"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shelfscan/")

	v.SetEnvPrefix("SHELFSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key needs a default
// so that AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.export_path", "products.csv")

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.backend", "gemini")
	v.SetDefault("gemini.project", "")
	v.SetDefault("gemini.location", "us-central1")
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.max_output_tokens", 1024)

	// DashScope defaults
	v.SetDefault("dashscope.api_key", "")
	v.SetDefault("dashscope.base_url", "https://dashscope-intl.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("dashscope.vision_url", "https://dashscope-intl.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation")
	v.SetDefault("dashscope.vision_model", "qwen-vl-max")
	v.SetDefault("dashscope.text_model", "qwen3-max")

	// Pipeline defaults
	v.SetDefault("pipeline.image_variant", VariantStructured)
	v.SetDefault("pipeline.image_provider", ProviderGemini)
	v.SetDefault("pipeline.reader_provider", ProviderDashScope)
	v.SetDefault("pipeline.structurer_provider", ProviderDashScope)
	v.SetDefault("pipeline.audio_provider", ProviderGemini)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.2)

	// Rate limit defaults
	v.SetDefault("ratelimit.provider_rps", 2)
	v.SetDefault("ratelimit.provider_burst", 4)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Gemini.Backend != "gemini" && config.Gemini.Backend != "vertex" {
		return fmt.Errorf("gemini backend must be 'gemini' or 'vertex', got: %s", config.Gemini.Backend)
	}

	if config.Gemini.Backend == "vertex" && config.Gemini.Project == "" {
		return fmt.Errorf("GCP project is required when gemini backend is 'vertex' (set SHELFSCAN_GEMINI_PROJECT)")
	}

	p := config.Pipeline
	if p.ImageVariant != VariantStructured && p.ImageVariant != VariantTwoStage {
		return fmt.Errorf("pipeline image_variant must be '%s' or '%s', got: %s", VariantStructured, VariantTwoStage, p.ImageVariant)
	}

	for name, provider := range map[string]string{
		"image_provider":      p.ImageProvider,
		"reader_provider":     p.ReaderProvider,
		"structurer_provider": p.StructurerProvider,
	} {
		if !isProvider(provider) {
			return fmt.Errorf("pipeline %s must be '%s' or '%s', got: %s", name, ProviderGemini, ProviderDashScope, provider)
		}
	}

	if p.AudioProvider != ProviderGemini {
		return fmt.Errorf("pipeline audio_provider must be '%s', got: %s", ProviderGemini, p.AudioProvider)
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got: %d", config.Retry.MaxAttempts)
	}

	if config.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry base_delay must not be negative, got: %v", config.Retry.BaseDelay)
	}

	if config.Retry.MaxDelay < config.Retry.BaseDelay {
		return fmt.Errorf("retry max_delay (%v) must not be less than base_delay (%v)", config.Retry.MaxDelay, config.Retry.BaseDelay)
	}

	if config.Retry.Jitter < 0 || config.Retry.Jitter > 1 {
		return fmt.Errorf("retry jitter must be between 0 and 1, got: %v", config.Retry.Jitter)
	}

	switch config.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be 'json' or 'text', got: %s", config.Log.Format)
	}

	return nil
}

func isProvider(name string) bool {
	return name == ProviderGemini || name == ProviderDashScope
}
