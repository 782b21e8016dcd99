// Package config loads contentflow settings from a config file, environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CONTENTFLOW_OUTPUT_DIR.
const EnvPrefix = "CONTENTFLOW"

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	GoogleAPIKey     string
	DeepSeekAPIKey   string
	TavilyAPIKey     string
	ElevenLabsAPIKey string

	ConfigDir string
	OutputDir string
	DataDir   string

	Server  ServerConfig
	Logging LoggingConfig
	Engine  EngineConfig

	RoutingConfig *RoutingConfig
	Aliases       *ModelAliases
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string
	Format string
}

// EngineConfig configures pipeline execution.
type EngineConfig struct {
	MaxBudgetUSD float64
	Mock         bool
	// SchemaRepairs is how many times a structured answer that does not
	// match its schema is sent back to the model.
	SchemaRepairs int
}

// Load reads configuration from path (or the default config file when path
// is empty) and the environment.
func Load(path string) (*Config, error) {
	return LoadFrom(viper.New(), path)
}

// LoadFrom is Load using v, which may already carry bound command-line flags.
// API keys are read from the environment only; keys in the config file are
// ignored so they never end up in a checked-in file.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	setDefaults(v, configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = findConfigFile(configDir)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !(errors.As(err, &notFound) || os.IsNotExist(err)) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		AnthropicAPIKey:  getEnvOrDefault("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:     getEnvOrDefault("OPENAI_API_KEY", ""),
		GoogleAPIKey:     getEnvOrDefault("GOOGLE_API_KEY", ""),
		DeepSeekAPIKey:   getEnvOrDefault("DEEPSEEK_API_KEY", ""),
		TavilyAPIKey:     getEnvOrDefault("TAVILY_API_KEY", ""),
		ElevenLabsAPIKey: getEnvOrDefault("ELEVENLABS_API_KEY", ""),
		ConfigDir:        configDir,
		OutputDir:        v.GetString("output_dir"),
		DataDir:          v.GetString("data_dir"),
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Engine: EngineConfig{
			MaxBudgetUSD:  v.GetFloat64("engine.max_budget_usd"),
			Mock:          v.GetBool("engine.mock"),
			SchemaRepairs: v.GetInt("engine.schema_repairs"),
		},
	}

	routingPath := v.GetString("routing_file")
	if _, err := os.Stat(routingPath); err == nil {
		routing, err := LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config: %w", err)
		}
		cfg.RoutingConfig = routing
	} else {
		cfg.RoutingConfig = DefaultRoutingConfig()
	}

	aliases, err := LoadAliasesWithFallback(v.GetString("aliases_file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load model aliases: %w", err)
	}
	cfg.Aliases = aliases

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("output_dir", "output")
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("engine.max_budget_usd", 0.0)
	v.SetDefault("engine.mock", false)
	v.SetDefault("engine.schema_repairs", 0)
	v.SetDefault("routing_file", filepath.Join(configDir, "routing.yaml"))
	v.SetDefault("aliases_file", filepath.Join(configDir, "models.yaml"))
}

// findConfigFile returns the first of config.yaml, config.yml or config.toml
// present in dir, or "".
func findConfigFile(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if c.Engine.MaxBudgetUSD < 0 {
		return fmt.Errorf("engine.max_budget_usd must not be negative")
	}
	if c.Engine.SchemaRepairs < 0 {
		return fmt.Errorf("engine.schema_repairs must not be negative")
	}
	return nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	default:
		return false
	}
}

// EvidenceDir is where per-run evidence bundles are written.
func (c *Config) EvidenceDir() string {
	return filepath.Join(c.DataDir, "evidence")
}

// ArchiveDir is where step output blobs are stored.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.DataDir, "archive")
}

// DatabasePath is the run history database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "contentflow.db")
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".contentflow")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return configDir, nil
}
