// Package openai implements llm.Client against any OpenAI-compatible chat
// completions endpoint.
//
// Example:
//
//	// Standard OpenAI
//	provider, _ := openai.NewProvider("sk-...", openai.WithModel("gpt-4o-mini"))
//
//	// Local OpenAI-compatible API, at most 30 requests per minute
//	provider, _ := openai.NewProvider("local",
//	    openai.WithBaseURL("http://localhost:8080/v1"),
//	    openai.WithRateLimit(30))
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/entrhq/orthoforge/pkg/llm"
	"github.com/entrhq/orthoforge/pkg/logging"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one HTTP round trip
	DefaultTimeout = 60 * time.Second
)

// Provider is an llm.Client backed by an OpenAI-compatible API. It is safe
// for concurrent use; all sessions share its rate limiter.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	limiter    *rate.Limiter
	log        *logging.Logger
}

var _ llm.Client = (*Provider)(nil)

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps requests per minute across all callers. Zero or
// negative disables limiting.
func WithRateLimit(perMinute int) ProviderOption {
	return func(p *Provider) {
		if perMinute <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProvider creates a new provider with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY
// environment variable. If baseURL is not provided via WithBaseURL, the
// OPENAI_BASE_URL environment variable is checked.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultBaseURL,
		log:        logging.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	return p, nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// GetCorrection implements llm.Client.
func (p *Provider) GetCorrection(ctx context.Context, question string) (*llm.Correction, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(correctionSystemPrompt),
		openai.UserMessage(correctionPrompt(question)),
	}

	content, err := p.complete(ctx, messages, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get correction: %w", err)
	}

	correction, err := parseCorrection(content)
	if err != nil {
		return nil, err
	}
	p.log.Debugf("correction: action=%s value=%q", correction.Action, correction.Value)
	return correction, nil
}

// GetErrorReportSuggestion implements llm.Client.
func (p *Provider) GetErrorReportSuggestion(ctx context.Context, report llm.ErrorReport) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(recoveryPrompt(report)),
	}
	if len(report.Screenshot) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(report.Screenshot),
			Detail: "low",
		}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(recoverySystemPrompt),
		openai.UserMessage(parts),
	}

	content, err := p.complete(ctx, messages, false)
	if err != nil {
		return "", fmt.Errorf("failed to get recovery suggestion: %w", err)
	}
	return parseSuggestion(content), nil
}

// complete sends one non-streaming chat completion and returns the content
// of the first choice.
func (p *Provider) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, jsonMode bool) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqBody := map[string]interface{}{
		"model":       p.model,
		"messages":    messages,
		"temperature": 0,
	}
	if jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", llm.ErrMalformedResponse)
	}

	return completion.Choices[0].Message.Content, nil
}
