package config

import (
	"fmt"
	"os"

	"github.com/entrhq/orthoforge/pkg/llm/openai"
	"github.com/entrhq/orthoforge/pkg/logging"
)

// ProviderFlags are the LLM settings given on the command line.
type ProviderFlags struct {
	Model   string
	BaseURL string
	APIKey  string
}

// ResolvedLLM is the outcome of flag, environment and file precedence.
type ResolvedLLM struct {
	Model   string
	BaseURL string
	APIKey  string
}

// ResolveLLM applies configuration precedence:
// CLI flags > Environment variables > Config file > Defaults
func ResolveLLM(flags ProviderFlags, file LLMConfig) (ResolvedLLM, error) {
	r := ResolvedLLM{
		Model:   flags.Model,
		BaseURL: flags.BaseURL,
		APIKey:  flags.APIKey,
	}

	if r.APIKey == "" {
		r.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if r.BaseURL == "" {
		r.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if r.Model == "" {
		r.Model = os.Getenv("OPENAI_MODEL")
	}

	if r.APIKey == "" {
		r.APIKey = file.APIKey
	}
	if r.BaseURL == "" {
		r.BaseURL = file.BaseURL
	}
	if r.Model == "" {
		r.Model = file.Model
	}

	if r.Model == "" {
		r.Model = openai.DefaultModel
	}

	if r.APIKey == "" {
		return ResolvedLLM{}, fmt.Errorf("%w: set OPENAI_API_KEY (environment or .env), use -api-key, or set llm.api_key in the config file", ErrMissingAPIKey)
	}
	return r, nil
}

// BuildProvider creates the language model client from the resolved
// settings and the rate and timeout limits of the config file.
func BuildProvider(flags ProviderFlags, file LLMConfig, log *logging.Logger) (*openai.Provider, error) {
	r, err := ResolveLLM(flags, file)
	if err != nil {
		return nil, err
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(r.Model),
		openai.WithRateLimit(file.RequestsPerMinute),
		openai.WithTimeout(file.Timeout),
		openai.WithLogger(log),
	}
	if r.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(r.BaseURL))
	}

	provider, err := openai.NewProvider(r.APIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}
