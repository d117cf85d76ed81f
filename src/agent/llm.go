package agent

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMConfig holds settings for the OpenAI-compatible completion backend.
type LLMConfig struct {
	APIKey      string
	Endpoint    string
	Deployment  string
	APIVersion  string
	Temperature float64
	Azure       bool
}

// DefaultLLMConfig mirrors the deployment the relay was built against.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Deployment:  "gpt-5-mini",
		APIVersion:  "2024-02-01",
		Temperature: 1.0,
		Azure:       true,
	}
}

// NewLLM constructs an OpenAI-compatible model client. With Azure set,
// Deployment names the Azure deployment; otherwise it is the plain
// model id and Endpoint may point at any compatible API.
func NewLLM(cfg LLMConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Deployment),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Azure {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion),
		)
	}
	return openai.New(opts...)
}
