package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/orthoforge/pkg/llm"
)

// reasoningTags are the block tags reasoning models wrap their scratchpad in.
var reasoningTags = []string{"think", "thinking"}

// stripReasoning removes <think>...</think> and <thinking>...</thinking>
// blocks. An unterminated block swallows the rest of the content.
func stripReasoning(content string) string {
	for _, tag := range reasoningTags {
		open, closing := "<"+tag+">", "</"+tag+">"
		for {
			start := strings.Index(content, open)
			if start < 0 {
				break
			}
			end := strings.Index(content[start:], closing)
			if end < 0 {
				content = content[:start]
				break
			}
			content = content[:start] + content[start+end+len(closing):]
		}
	}
	return strings.TrimSpace(content)
}

// stripFences removes a surrounding markdown code fence (``` or ```json).
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// extractJSONObject returns the outermost {...} of content.
func extractJSONObject(content string) (string, bool) {
	content = stripFences(stripReasoning(content))
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// parseCorrection decodes a correction from raw model output.
func parseCorrection(content string) (*llm.Correction, error) {
	raw, ok := extractJSONObject(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in %q", llm.ErrMalformedResponse, truncate(content, 120))
	}

	// rule_id comes back as a number or a string depending on the model.
	var decoded struct {
		Action string      `json:"action"`
		Value  interface{} `json:"value"`
		RuleID interface{} `json:"rule_id"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}

	action := strings.ToLower(strings.TrimSpace(decoded.Action))
	if action == "" {
		return nil, llm.ErrNoAction
	}

	return &llm.Correction{
		Action: action,
		Value:  scalarString(decoded.Value),
		RuleID: scalarString(decoded.RuleID),
	}, nil
}

// parseSuggestion normalizes a recovery suggestion. Quotes, fences and
// reasoning are removed; an empty answer becomes llm.NoAction.
func parseSuggestion(content string) string {
	s := stripFences(stripReasoning(content))
	if raw, ok := extractJSONObject(s); ok {
		var decoded struct {
			Suggestion string `json:"suggestion"`
		}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			s = decoded.Suggestion
		}
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, llm.NoAction) {
		return llm.NoAction
	}
	return s
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
