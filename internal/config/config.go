package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable holding the OpenAI API key.
const EnvAPIKey = "OPENAI_API_KEY"

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
	Files          FilesConfig          `yaml:"files"`
	Generation     GenerationConfig     `yaml:"generation"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

type OpenAIConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	DefaultModel  string        `yaml:"default_model"`
	AllowedModels []string      `yaml:"allowed_models"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
}

type FilesConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxImageSide int   `yaml:"max_image_side"`
	JPEGQuality  int   `yaml:"jpeg_quality"`
}

type GenerationConfig struct {
	SystemPromptPath   string `yaml:"system_prompt_path"`
	DefaultAccentColor string `yaml:"default_accent_color"`
	DefaultMaxTokens   int    `yaml:"default_max_tokens"`
	MinTokens          int    `yaml:"min_tokens"`
	MaxTokens          int    `yaml:"max_tokens"`
	MaxBriefLength     int    `yaml:"max_brief_length"`
	StoreSize          int    `yaml:"store_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			CorsOrigins: []string{"*"},
		},
		OpenAI: OpenAIConfig{
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4.1-mini",
			AllowedModels: []string{
				"gpt-4.1-mini",
				"gpt-4.1",
				"gpt-4o-mini",
				"gpt-4o",
			},
			Temperature: 0.2,
			Timeout:     120 * time.Second,
			MaxRetries:  3,
			BackoffBase: 2 * time.Second,
		},
		Files: FilesConfig{
			MaxFileBytes: 8_000_000,
			MaxImageSide: 2048,
			JPEGQuality:  85,
		},
		Generation: GenerationConfig{
			SystemPromptPath:   "prompts/system_prompt.txt",
			DefaultAccentColor: "#0b3a6e",
			DefaultMaxTokens:   6000,
			MinTokens:          1024,
			MaxTokens:          8000,
			MaxBriefLength:     6000,
			StoreSize:          256,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	if val := os.Getenv(EnvAPIKey); val != "" {
		config.OpenAI.APIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		config.OpenAI.BaseURL = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		config.OpenAI.DefaultModel = val
	}
	if val := os.Getenv("OPENAI_MODELS"); val != "" {
		models := strings.Split(val, ",")
		for i := range models {
			models[i] = strings.TrimSpace(models[i])
		}
		config.OpenAI.AllowedModels = models
	}
	if val := os.Getenv("OPENAI_TEMPERATURE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			config.OpenAI.Temperature = f
		}
	}
	if val := os.Getenv("OPENAI_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.OpenAI.Timeout = d
		}
	}
	if val := os.Getenv("OPENAI_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.OpenAI.MaxRetries = i
		}
	}
	if val := os.Getenv("OPENAI_BACKOFF_BASE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.OpenAI.BackoffBase = d
		}
	}

	if val := os.Getenv("MAX_FILE_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Files.MaxFileBytes = i
		}
	}
	if val := os.Getenv("MAX_IMAGE_SIDE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Files.MaxImageSide = i
		}
	}
	if val := os.Getenv("JPEG_QUALITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Files.JPEGQuality = i
		}
	}

	if val := os.Getenv("SYSTEM_PROMPT_PATH"); val != "" {
		config.Generation.SystemPromptPath = val
	}
	if val := os.Getenv("DEFAULT_ACCENT_COLOR"); val != "" {
		config.Generation.DefaultAccentColor = val
	}
	if val := os.Getenv("DEFAULT_MAX_TOKENS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Generation.DefaultMaxTokens = i
		}
	}
	if val := os.Getenv("MAX_BRIEF_LENGTH"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Generation.MaxBriefLength = i
		}
	}
	if val := os.Getenv("STORE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Generation.StoreSize = i
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errs []string

	if len(config.OpenAI.AllowedModels) == 0 {
		errs = append(errs, "at least one allowed model must be specified in OPENAI_MODELS or config.yaml")
	}

	if config.OpenAI.DefaultModel != "" && !config.ModelAllowed(config.OpenAI.DefaultModel) {
		errs = append(errs, fmt.Sprintf("default model %q is not in the allowed model list", config.OpenAI.DefaultModel))
	}

	if config.OpenAI.Temperature < 0 || config.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("OPENAI_TEMPERATURE must be between 0 and 2 (current: %.2f)", config.OpenAI.Temperature))
	}

	if config.OpenAI.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("OPENAI_MAX_RETRIES must not be negative (current: %d)", config.OpenAI.MaxRetries))
	}

	if config.Files.MaxFileBytes <= 0 {
		errs = append(errs, fmt.Sprintf("MAX_FILE_BYTES must be positive (current: %d)", config.Files.MaxFileBytes))
	}

	if config.Files.MaxImageSide <= 0 {
		errs = append(errs, fmt.Sprintf("MAX_IMAGE_SIDE must be positive (current: %d)", config.Files.MaxImageSide))
	}

	if config.Files.JPEGQuality < 1 || config.Files.JPEGQuality > 100 {
		errs = append(errs, fmt.Sprintf("JPEG_QUALITY must be between 1 and 100 (current: %d)", config.Files.JPEGQuality))
	}

	if config.Generation.MinTokens > config.Generation.MaxTokens {
		errs = append(errs, fmt.Sprintf("min_tokens (%d) exceeds max_tokens (%d)", config.Generation.MinTokens, config.Generation.MaxTokens))
	}

	if config.Generation.StoreSize <= 0 {
		errs = append(errs, fmt.Sprintf("STORE_SIZE must be positive (current: %d)", config.Generation.StoreSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ModelAllowed reports whether model is in the allowed model list.
func (c *Config) ModelAllowed(model string) bool {
	for _, allowed := range c.OpenAI.AllowedModels {
		if allowed == model {
			return true
		}
	}
	return false
}

// ClampTokens bounds a requested token budget to the configured range.
func (c *Config) ClampTokens(tokens int) int {
	if tokens < c.Generation.MinTokens {
		return c.Generation.MinTokens
	}
	if tokens > c.Generation.MaxTokens {
		return c.Generation.MaxTokens
	}
	return tokens
}

// Load loads configuration from the default location.
func Load() (*Config, error) {
	return LoadYAML("")
}
