package exercise

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/orthoforge/pkg/llm"
)

var (
	// ErrUnrecognizedAction is returned when the model names an action the
	// solver does not know. It is a model error, never sent to recovery.
	ErrUnrecognizedAction = errors.New("exercise: unrecognized action")

	// ErrParse is returned when the exercise cannot be read from the page.
	ErrParse = errors.New("exercise: parse failed")

	// ErrElementNotFound is returned when an expected element is missing.
	ErrElementNotFound = errors.New("exercise: element not found")
)

// Action names as returned by the model.
const (
	ActionClickWord    = "click_word"
	ActionSelectOption = "select_option"
	ActionValidateRule = "validate_rule"
	ActionNoMistake    = "no_mistake"
)

// Action is the closed set of things the solver can do on an exercise.
type Action interface {
	isAction()
	String() string
}

// ClickWord clicks the span holding the faulty word.
type ClickWord struct{ Word string }

// SelectOption picks the choice whose label is Value.
type SelectOption struct{ Value string }

// ValidateRule accepts the rule shown; it clicks the no-mistake control.
type ValidateRule struct{ RuleID string }

// NoMistake declares the sentence correct.
type NoMistake struct{}

// Unrecognized carries an action name the solver does not know.
type Unrecognized struct{ Name string }

func (ClickWord) isAction()    {}
func (SelectOption) isAction() {}
func (ValidateRule) isAction() {}
func (NoMistake) isAction()    {}
func (Unrecognized) isAction() {}

func (a ClickWord) String() string    { return fmt.Sprintf("%s(%q)", ActionClickWord, a.Word) }
func (a SelectOption) String() string { return fmt.Sprintf("%s(%q)", ActionSelectOption, a.Value) }
func (a ValidateRule) String() string { return fmt.Sprintf("%s(%s)", ActionValidateRule, a.RuleID) }
func (NoMistake) String() string      { return ActionNoMistake }
func (a Unrecognized) String() string { return fmt.Sprintf("unrecognized(%q)", a.Name) }

// ParseAction converts a model correction into an Action. A missing action,
// or a click/select without a value, is an error; an unknown action name is
// not, it yields Unrecognized for the dispatcher to reject.
func ParseAction(c *llm.Correction) (Action, error) {
	if c == nil || strings.TrimSpace(c.Action) == "" {
		return nil, llm.ErrNoAction
	}

	value := strings.TrimSpace(c.Value)
	switch name := strings.ToLower(strings.TrimSpace(c.Action)); name {
	case ActionClickWord:
		if value == "" {
			return nil, fmt.Errorf("%w: %s without a value", llm.ErrMalformedResponse, name)
		}
		return ClickWord{Word: value}, nil
	case ActionSelectOption:
		if value == "" {
			return nil, fmt.Errorf("%w: %s without a value", llm.ErrMalformedResponse, name)
		}
		return SelectOption{Value: value}, nil
	case ActionValidateRule:
		return ValidateRule{RuleID: strings.TrimSpace(c.RuleID)}, nil
	case ActionNoMistake:
		return NoMistake{}, nil
	default:
		return Unrecognized{Name: c.Action}, nil
	}
}
