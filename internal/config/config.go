package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "gemma2-9b-it"
)

// Config holds the application configuration
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Verification VerificationConfig `mapstructure:"verification"`
	Server       ServerConfig       `mapstructure:"server"`
	History      HistoryConfig      `mapstructure:"history"`
	Log          LogConfig          `mapstructure:"log"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
}

// LLMConfig holds the hosted chat-completion configuration
type LLMConfig struct {
	BaseURL            string   `mapstructure:"base_url"`
	APIKey             string   `mapstructure:"api_key"`
	DefaultModel       string   `mapstructure:"default_model"`
	NonStreamingModels []string `mapstructure:"non_streaming_models"`
}

// VerificationConfig holds the shared secret used to authenticate inbound requests
type VerificationConfig struct {
	Secret string `mapstructure:"secret"`
	KeyID  string `mapstructure:"key_id"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	// MCPEnabled exposes the tools over MCP at /sse and /message. Those
	// routes are not signature checked.
	MCPEnabled bool `mapstructure:"mcp_enabled"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// HistoryConfig configures the transcript archive. An empty DBPath disables it.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CatalogConfig carries metadata merged over the upstream model listing.
type CatalogConfig struct {
	Models []ModelConfig `mapstructure:"models"`
}

// ModelConfig describes one catalog entry. Schema is kept loosely typed and
// decoded by the catalog package.
type ModelConfig struct {
	Name           string         `mapstructure:"name"`
	DisplayName    string         `mapstructure:"display_name"`
	Version        string         `mapstructure:"version"`
	Publisher      string         `mapstructure:"publisher"`
	RegistryName   string         `mapstructure:"registry_name"`
	License        string         `mapstructure:"license"`
	InferenceTasks []string       `mapstructure:"inference_tasks"`
	Summary        string         `mapstructure:"summary"`
	Schema         map[string]any `mapstructure:"schema"`
}

var (
	ErrMissingAPIKey = errors.New("llm api key is required (GROQ_API_KEY)")
	ErrMissingSecret = errors.New("verification secret is required (COPILOT_SECRET)")
	ErrMissingKeyID  = errors.New("verification key id is required (COPILOT_KEY_ID)")
)

// Validate reports every missing required setting. The process must not
// start when it returns an error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.Verification.Secret) == "" {
		errs = append(errs, ErrMissingSecret)
	}
	if strings.TrimSpace(c.Verification.KeyID) == "" {
		errs = append(errs, ErrMissingKeyID)
	}
	return errors.Join(errs...)
}

// Load reads config.yaml (or the file named by CONFIG_PATH) and applies
// environment overrides. A missing default config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	path := os.Getenv("CONFIG_PATH")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", DefaultBaseURL)
	v.SetDefault("llm.default_model", DefaultModel)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.api_key":              {"GROQ_API_KEY"},
		"llm.base_url":             {"GROQ_BASE_URL"},
		"llm.default_model":        {"GROQ_DEFAULT_MODEL"},
		"llm.non_streaming_models": {"GROQ_NON_STREAMING_MODELS"},
		"verification.secret":      {"COPILOT_SECRET"},
		"verification.key_id":      {"COPILOT_KEY_ID"},
		"server.host":              {"HOST"},
		"server.port":              {"PORT"},
		"server.mcp_enabled":       {"MCP_ENABLED"},
		"history.db_path":          {"HISTORY_DB_PATH"},
		"log.level":                {"LOG_LEVEL"},
		"log.format":               {"LOG_FORMAT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
