package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all relay settings, loaded env-first with an optional
// .env file for local development.
type Config struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	OpenAIAPIKey     string  `mapstructure:"FHIR_CHAT_OPENAI_API_KEY"`
	OpenAIEndpoint   string  `mapstructure:"FHIR_CHAT_OPENAI_ENDPOINT"`
	OpenAIDeployment string  `mapstructure:"FHIR_CHAT_OPENAI_DEPLOYMENT"`
	OpenAIAPIVersion string  `mapstructure:"FHIR_CHAT_OPENAI_API_VERSION"`
	OpenAIAzure      bool    `mapstructure:"FHIR_CHAT_OPENAI_AZURE"`
	Temperature      float64 `mapstructure:"FHIR_CHAT_TEMPERATURE"`

	MCPServerURL      string `mapstructure:"MCP_SERVER_URL"`
	MCPTimeoutSeconds int    `mapstructure:"MCP_TIMEOUT_SECONDS"`

	ReadBufferSize  int `mapstructure:"WS_READ_BUFFER_SIZE"`
	WriteBufferSize int `mapstructure:"WS_WRITE_BUFFER_SIZE"`
}

// Load reads configuration from the environment and an optional .env
// file. Credentials are required; everything else has defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FHIR_CHAT_OPENAI_DEPLOYMENT", "gpt-5-mini")
	v.SetDefault("FHIR_CHAT_OPENAI_API_VERSION", "2024-02-01")
	v.SetDefault("FHIR_CHAT_OPENAI_AZURE", true)
	v.SetDefault("FHIR_CHAT_TEMPERATURE", 1.0)
	v.SetDefault("MCP_SERVER_URL", "http://localhost:8080/sse")
	v.SetDefault("MCP_TIMEOUT_SECONDS", 30)
	v.SetDefault("WS_READ_BUFFER_SIZE", 1024)
	v.SetDefault("WS_WRITE_BUFFER_SIZE", 1024)

	// Bind env vars explicitly so Unmarshal picks them up.
	for _, key := range []string{
		"PORT",
		"LOG_LEVEL",
		"FHIR_CHAT_OPENAI_API_KEY",
		"FHIR_CHAT_OPENAI_ENDPOINT",
		"FHIR_CHAT_OPENAI_DEPLOYMENT",
		"FHIR_CHAT_OPENAI_API_VERSION",
		"FHIR_CHAT_OPENAI_AZURE",
		"FHIR_CHAT_TEMPERATURE",
		"MCP_SERVER_URL",
		"MCP_TIMEOUT_SECONDS",
		"WS_READ_BUFFER_SIZE",
		"WS_WRITE_BUFFER_SIZE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("FHIR_CHAT_OPENAI_API_KEY is required")
	}
	if cfg.OpenAIEndpoint == "" {
		return nil, fmt.Errorf("FHIR_CHAT_OPENAI_ENDPOINT is required")
	}
	return cfg, nil
}

// MCPTimeout returns the MCP call timeout as a duration.
func (c *Config) MCPTimeout() time.Duration {
	return time.Duration(c.MCPTimeoutSeconds) * time.Second
}

// Addr returns the listen address for the relay server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
