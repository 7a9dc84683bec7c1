// Package llm defines the language-model contract used by the exercise
// solver and by error-assisted recovery.
//
// Example usage:
//
//	client, err := openai.NewProvider(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	correction, err := client.GetCorrection(ctx, "Il a mangé les pomme.")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(correction.Action, correction.Value)
package llm

import (
	"context"
	"errors"
)

// NoAction is the suggestion a model returns when it sees nothing to click.
const NoAction = "AUCUNE_ACTION"

var (
	// ErrNoAction is returned when a correction carries no action.
	ErrNoAction = errors.New("llm: response has no action")

	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// Correction is the structured action a model proposes for one exercise.
type Correction struct {
	// Action is one of click_word, select_option, validate_rule,
	// no_mistake. Anything else is passed through for the caller to reject.
	Action string `json:"action"`

	// Value is the word to click or the option to select
	Value string `json:"value,omitempty"`

	// RuleID identifies the grammar rule for validate_rule
	RuleID string `json:"rule_id,omitempty"`
}

// ErrorReport describes a failed automation step.
type ErrorReport struct {
	Message   string
	URL       string
	SessionID string

	// Context names the step that failed (e.g. "click_word")
	Context string

	// Screenshot is an optional JPEG capture of the page
	Screenshot []byte
}

// Client is the language-model collaborator.
//
// Implementations must be safe for concurrent use: every account session
// shares one client.
type Client interface {
	// GetCorrection asks for the action that fixes the given exercise
	// sentence. A response without an action yields ErrNoAction.
	GetCorrection(ctx context.Context, question string) (*Correction, error)

	// GetErrorReportSuggestion asks for the visible text or selector of an
	// element that would get the page unstuck. The result is NoAction when
	// the model has no suggestion.
	GetErrorReportSuggestion(ctx context.Context, report ErrorReport) (string, error)
}
