package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Vision providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Vision   VisionConfig   `mapstructure:"vision"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Document DocumentConfig `mapstructure:"document"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadBytes caps a scan request's multipart body
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// VisionConfig selects and tunes the recognition backend
type VisionConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	APIVersions  []string      `mapstructure:"api_versions"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PromptsPath  string        `mapstructure:"prompts_path"`
}

// OpenAIConfig holds OpenAI API configuration for the openai provider
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// AuthConfig holds account and token settings
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type IngestConfig struct {
	MaxReportedErrors int `mapstructure:"max_reported_errors"`
}

// DocumentConfig controls PDF rasterization
type DocumentConfig struct {
	DPI      float64 `mapstructure:"dpi"`
	MaxPages int     `mapstructure:"max_pages"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LoadEnvFile reads KEY=VALUE secrets from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from path, environment variables and defaults, in
// that order of precedence from lowest to highest: defaults, file, environment.
// An empty path searches ./configs and . for config.yaml and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.max_upload_bytes", 64<<20)

	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("vision.provider", ProviderGemini)
	v.SetDefault("vision.model", "gemini-1.5-flash")
	v.SetDefault("vision.api_versions", []string{"v1beta", "v1"})
	v.SetDefault("vision.timeout", 25*time.Second)
	v.SetDefault("vision.max_retries", 2)
	v.SetDefault("vision.retry_backoff", time.Second)

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 1024)

	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("ingest.max_reported_errors", 5)

	v.SetDefault("document.dpi", 200)
	v.SetDefault("document.max_pages", 20)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional secret variables
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"vision.api_key":  "GEMINI_API_KEY",
		"openai.api_key":  "OPENAI_API_KEY",
		"auth.jwt_secret": "INVOICE_JWT_SECRET",
		"database.path":   "INVOICE_DB_PATH",
		"vision.provider": "INVOICE_VISION_PROVIDER",
		"logger.level":    "INVOICE_LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate checks settings every entry point needs
func (c *Config) Validate() error {
	switch c.Vision.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("vision.provider must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.Vision.Provider)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Vision.Timeout <= 0 {
		return fmt.Errorf("vision.timeout must be positive")
	}
	if c.Vision.MaxRetries < 0 {
		return fmt.Errorf("vision.max_retries must not be negative")
	}
	if c.Vision.Provider == ProviderGemini && len(c.Vision.APIVersions) == 0 {
		return fmt.Errorf("vision.api_versions must list at least one version")
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs
func (c *Config) ValidateServer() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// VisionAPIKey returns the credential of the selected provider
func (c *Config) VisionAPIKey() string {
	if c.Vision.Provider == ProviderOpenAI {
		return c.OpenAI.APIKey
	}
	return c.Vision.APIKey
}
