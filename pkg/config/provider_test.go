package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/orthoforge/pkg/llm/openai"
	"github.com/entrhq/orthoforge/pkg/logging"
)

func TestResolveLLM(t *testing.T) {
	tests := []struct {
		name        string
		flags       ProviderFlags
		envAPIKey   string
		envBaseURL  string
		envModel    string
		file        LLMConfig
		expectError bool
		expected    ResolvedLLM
	}{
		{
			name:       "CLI flag takes precedence over env",
			flags:      ProviderFlags{Model: "gpt-4o", BaseURL: "https://cli.example.com", APIKey: "cli-key"},
			envAPIKey:  "env-key",
			envBaseURL: "https://env.example.com",
			envModel:   "env-model",
			expected:   ResolvedLLM{Model: "gpt-4o", BaseURL: "https://cli.example.com", APIKey: "cli-key"},
		},
		{
			name:       "Environment variable used when CLI empty",
			envAPIKey:  "env-key",
			envBaseURL: "https://env.example.com",
			file:       LLMConfig{Model: "file-model", APIKey: "file-key", BaseURL: "https://file.example.com"},
			expected:   ResolvedLLM{Model: "file-model", BaseURL: "https://env.example.com", APIKey: "env-key"},
		},
		{
			name:     "Config file used when CLI and env empty",
			file:     LLMConfig{Model: "file-model", APIKey: "file-key", BaseURL: "https://file.example.com"},
			expected: ResolvedLLM{Model: "file-model", BaseURL: "https://file.example.com", APIKey: "file-key"},
		},
		{
			name:     "Default model when nothing set",
			flags:    ProviderFlags{APIKey: "cli-key"},
			expected: ResolvedLLM{Model: openai.DefaultModel, APIKey: "cli-key"},
		},
		{
			name:        "Missing API key",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.envAPIKey)
			t.Setenv("OPENAI_BASE_URL", tt.envBaseURL)
			t.Setenv("OPENAI_MODEL", tt.envModel)

			got, err := ResolveLLM(tt.flags, tt.file)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrMissingAPIKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OPENAI_MODEL", "")

	p, err := BuildProvider(
		ProviderFlags{APIKey: "key", BaseURL: "http://localhost:8080/v1"},
		LLMConfig{Model: "local-model", RequestsPerMinute: 10, Timeout: time.Second},
		logging.Discard(),
	)
	require.NoError(t, err)
	assert.Equal(t, "local-model", p.GetModel())
	assert.Equal(t, "http://localhost:8080/v1", p.GetBaseURL())

	_, err = BuildProvider(ProviderFlags{}, LLMConfig{}, logging.Discard())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
