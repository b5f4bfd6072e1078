package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Server   Server   `mapstructure:"server"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	Temperature float32 `mapstructure:"temperature"`
}

// Feeds holds source fetching configuration
type Feeds struct {
	UserAgent       string `mapstructure:"user_agent"`
	FeedTimeout     string `mapstructure:"feed_timeout"`
	PageTimeout     string `mapstructure:"page_timeout"`
	MaxItemsPerFeed int    `mapstructure:"max_items_per_feed"`
}

// Pipeline holds ranking pipeline configuration
type Pipeline struct {
	OutputLimit   int     `mapstructure:"output_limit"`
	Jitter        float64 `mapstructure:"jitter"`
	AdaptiveCrawl bool    `mapstructure:"adaptive_crawl"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	CORS         CORS   `mapstructure:"cors"`
}

// CORS holds cross-origin configuration for the HTTP server
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".curator")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".curator")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "30s")
	viper.SetDefault("ai.gemini.temperature", 0.2)

	viper.SetDefault("feeds.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	viper.SetDefault("feeds.feed_timeout", "5s")
	viper.SetDefault("feeds.page_timeout", "3s")
	viper.SetDefault("feeds.max_items_per_feed", 10)

	viper.SetDefault("pipeline.output_limit", 200)
	viper.SetDefault("pipeline.jitter", 0.5)
	viper.SetDefault("pipeline.adaptive_crawl", true)

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("app.data_dir", []string{
		"CURATOR_DATA_DIR",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"CURATOR_DEBUG",
	})

	bindEnvKeys("server.port", []string{
		"PORT",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"ai.gemini.timeout":    config.AI.Gemini.Timeout,
		"feeds.feed_timeout":   config.Feeds.FeedTimeout,
		"feeds.page_timeout":   config.Feeds.PageTimeout,
		"server.read_timeout":  config.Server.ReadTimeout,
		"server.write_timeout": config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks value ranges. A missing Gemini key only disables the AI stages.
func validateConfig(config *Config) error {
	var errors []string

	if config.Pipeline.OutputLimit <= 0 {
		errors = append(errors, fmt.Sprintf("pipeline.output_limit must be positive, got %d", config.Pipeline.OutputLimit))
	}
	if config.Pipeline.Jitter < 0 {
		errors = append(errors, fmt.Sprintf("pipeline.jitter must not be negative, got %v", config.Pipeline.Jitter))
	}
	if config.Feeds.MaxItemsPerFeed <= 0 {
		errors = append(errors, fmt.Sprintf("feeds.max_items_per_feed must be positive, got %d", config.Feeds.MaxItemsPerFeed))
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port out of range: %d", config.Server.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App           { return Get().App }
func GetAI() AI             { return Get().AI }
func GetFeeds() Feeds       { return Get().Feeds }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetServer() Server     { return Get().Server }
func GetLogging() Logging   { return Get().Logging }

func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string  { return Get().AI.Gemini.Model }
func GetDataDir() string      { return Get().App.DataDir }
func IsDebugMode() bool       { return Get().App.Debug }

// HasGemini returns true if a usable Gemini API key is configured
func HasGemini() bool {
	return isValidAPIKey(GetGeminiAPIKey())
}

// Duration parses a validated duration string, returning fallback when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "your-gemini-api-key",
		"YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
