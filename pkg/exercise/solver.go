// Package exercise solves one exercise step at a time: it reads the sentence,
// asks the language model what to do, applies the answer in the page and
// moves on to the next sentence.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/concurrency"
	"github.com/entrhq/orthoforge/pkg/config"
	"github.com/entrhq/orthoforge/pkg/llm"
	"github.com/entrhq/orthoforge/pkg/logging"
)

// errStepPanic marks a step that panicked. Such a step always ends with a
// restart, whatever recovery reports.
var errStepPanic = errors.New("exercise: step panicked")

// Outcome is the result of one solve attempt. Callers above the solver only
// branch on ExerciseComplete and RestartBrowser; Err is for logging.
type Outcome struct {
	Success          bool
	ExerciseComplete bool
	RestartBrowser   bool
	Err              error
}

// Options configures a Solver.
type Options struct {
	Parser    Parser
	LLM       llm.Client
	Recovery  *Recovery
	Selectors config.Selectors
	Timing    config.TimingConfig

	// MaxSolves bounds concurrent solve attempts across all sessions
	MaxSolves int

	Log   *logging.Logger
	Sleep SleepFunc
}

// Solver runs solve attempts. One Solver is shared by every session.
type Solver struct {
	parser   Parser
	llm      llm.Client
	recovery *Recovery
	sel      config.Selectors
	timing   config.TimingConfig
	log      *logging.Logger
	sleep    SleepFunc

	solves *concurrency.Semaphore
	locks  *SessionLocks
}

// NewSolver validates opts and builds a Solver.
func NewSolver(opts Options) (*Solver, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("solver requires a language model client")
	}
	solves, err := concurrency.NewSemaphore("solves", opts.MaxSolves)
	if err != nil {
		return nil, err
	}

	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Parser == nil {
		opts.Parser = &HTMLParser{Sentence: opts.Selectors.Sentence, Timeout: opts.Timing.ElementTimeout}
	}
	if opts.Recovery == nil {
		opts.Recovery = &Recovery{LLM: opts.LLM, Log: opts.Log, Timeout: opts.Timing.ElementTimeout}
	}
	if opts.Timing.NextRetries < 1 {
		opts.Timing.NextRetries = 1
	}

	return &Solver{
		parser:   opts.Parser,
		llm:      opts.LLM,
		recovery: opts.Recovery,
		sel:      opts.Selectors,
		timing:   opts.Timing,
		log:      opts.Log,
		sleep:    opts.Sleep,
		solves:   solves,
		locks:    NewSessionLocks(),
	}, nil
}

// InFlight reports how many solve attempts currently hold a slot.
func (s *Solver) InFlight() int { return s.solves.InUse() }

// PeakInFlight reports the highest number of concurrent solve attempts seen.
func (s *Solver) PeakInFlight() int { return s.solves.Peak() }

// SolveSingleExercise runs one parse, decide, act, advance pass. It holds a
// global solve slot and the session's lock for the whole pass and releases
// both on every path.
func (s *Solver) SolveSingleExercise(ctx context.Context, page browser.Page, sessionID string) Outcome {
	out, err := concurrency.RunExclusive(ctx, s.solves, func() (Outcome, error) {
		return concurrency.RunExclusive(ctx, s.locks.Get(sessionID), func() (Outcome, error) {
			return s.solve(ctx, page, sessionID), nil
		})
	})
	if err != nil {
		return Outcome{Err: err}
	}
	return out
}

func (s *Solver) solve(ctx context.Context, page browser.Page, sessionID string) Outcome {
	logger := s.log.With(sessionID)

	ex, err := guard(func() (*Exercise, error) {
		return s.parser.Parse(ctx, page)
	})
	if err != nil {
		return s.fail(ctx, page, sessionID, "parse", err)
	}
	logger.Debugf("exercise: %s", ex.Question)

	if err := s.sleep(ctx, humanDelay(s.timing.ThinkMin, s.timing.ThinkMax)); err != nil {
		return Outcome{Err: err}
	}

	action, err := guard(func() (Action, error) {
		correction, err := s.llm.GetCorrection(ctx, ex.Prompt())
		if err != nil {
			return nil, err
		}
		return ParseAction(correction)
	})
	if err != nil {
		return s.fail(ctx, page, sessionID, "get_correction", err)
	}
	logger.Infof("applying %s", action)

	if out, ok := s.apply(ctx, page, sessionID, action); !ok {
		return out
	}
	return s.advance(ctx, page, sessionID)
}

// apply dispatches the action. ok is false when the attempt ends here.
func (s *Solver) apply(ctx context.Context, page browser.Page, sessionID string, action Action) (Outcome, bool) {
	var (
		where string
		run   func() error
	)
	switch a := action.(type) {
	case ClickWord:
		where, run = ActionClickWord, func() error { return s.clickWord(page, a.Word) }
	case SelectOption:
		where, run = ActionSelectOption, func() error { return s.selectOption(page, a.Value) }
	case ValidateRule:
		where, run = ActionValidateRule, func() error { return s.clickNoMistake(page) }
	case NoMistake:
		where, run = ActionNoMistake, func() error { return s.clickNoMistake(page) }
	case Unrecognized:
		s.log.With(sessionID).Warnf("model returned unknown action %q", a.Name)
		return Outcome{Err: fmt.Errorf("%w: %q", ErrUnrecognizedAction, a.Name)}, false
	default:
		return Outcome{Err: fmt.Errorf("%w: %T", ErrUnrecognizedAction, action)}, false
	}

	if _, err := guard(func() (struct{}, error) { return struct{}{}, run() }); err != nil {
		return s.fail(ctx, page, sessionID, where, err), false
	}
	return Outcome{}, true
}

// advance waits for the next or finish control after an answer.
func (s *Solver) advance(ctx context.Context, page browser.Page, sessionID string) Outcome {
	logger := s.log.With(sessionID)

	var lastErr error
	for attempt := 1; attempt <= s.timing.NextRetries; attempt++ {
		if page.IsClosed() {
			return Outcome{RestartBrowser: true, Err: browser.ErrPageClosed}
		}

		if page.Locator(s.sel.FinishButton).IsVisible(0) {
			logger.Infof("exercise complete")
			return Outcome{Success: true, ExerciseComplete: true}
		}

		next := page.Locator(s.sel.NextButton)
		if next.IsVisible(0) {
			err := next.Click(s.timing.ElementTimeout)
			if err == nil {
				return Outcome{Success: true}
			}
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%w: next control", ErrElementNotFound)
		}

		if attempt < s.timing.NextRetries {
			logger.Debugf("next control not ready (attempt %d/%d)", attempt, s.timing.NextRetries)
			if err := s.sleep(ctx, s.timing.NextRetryDelay); err != nil {
				return Outcome{Err: err}
			}
		}
	}

	err := fmt.Errorf("advance after %d attempts: %w", s.timing.NextRetries, lastErr)
	if ctx.Err() != nil {
		return Outcome{Err: err}
	}
	if s.recovery.Handle(ctx, page, sessionID, err, "advance") {
		return Outcome{RestartBrowser: true, Err: err}
	}
	return Outcome{Success: true, Err: err}
}

// fail routes a failed step through recovery.
func (s *Solver) fail(ctx context.Context, page browser.Page, sessionID, where string, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Err: err}
	}
	s.log.With(sessionID).Warnf("%s failed: %v", where, err)

	restart := s.recovery.Handle(ctx, page, sessionID, err, where)
	if errors.Is(err, errStepPanic) {
		restart = true
	}
	return Outcome{RestartBrowser: restart, Err: fmt.Errorf("%s: %w", where, err)}
}

func (s *Solver) clickWord(page browser.Page, word string) error {
	candidates := []string{word}
	if first := firstSegment(word); first != "" && first != word {
		candidates = append(candidates, first)
	}

	for _, w := range candidates {
		loc := page.Locator(s.wordSelector(w))
		if !loc.IsVisible(s.timing.ElementTimeout) {
			continue
		}
		return loc.Click(s.timing.ElementTimeout)
	}
	return fmt.Errorf("%w: word %q", ErrElementNotFound, word)
}

func (s *Solver) wordSelector(word string) string {
	return fmt.Sprintf("%s %s:text-is(%s)", s.sel.Sentence, s.sel.WordSpan, strconv.Quote(word))
}

// firstSegment returns the part of a compound answer before the first
// hyphen or space ("pourtant-donc" gives "pourtant").
func firstSegment(word string) string {
	parts := strings.FieldsFunc(word, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// selectOption tries a native select, then a choice whose text is exactly
// value, then a choice whose text contains value ignoring case.
func (s *Solver) selectOption(page browser.Page, value string) error {
	timeout := s.timing.ElementTimeout

	if s.sel.OptionSelect != "" {
		native := page.Locator(s.sel.OptionSelect)
		if n, err := native.Count(); err == nil && n > 0 {
			if err := native.Nth(0).SelectOption(value, timeout); err == nil {
				return nil
			}
		}
	}

	if s.sel.OptionChoice == "" {
		return fmt.Errorf("%w: option %q", ErrElementNotFound, value)
	}
	choices := page.Locator(s.sel.OptionChoice)
	n, err := choices.Count()
	if err != nil {
		return err
	}

	texts := make([]string, n)
	for i := range n {
		text, err := choices.Nth(i).TextContent(timeout)
		if err != nil {
			continue
		}
		texts[i] = strings.TrimSpace(text)
	}

	for i, text := range texts {
		if text == value {
			return choices.Nth(i).Click(timeout)
		}
	}
	want := strings.ToLower(value)
	for i, text := range texts {
		if text != "" && strings.Contains(strings.ToLower(text), want) {
			return choices.Nth(i).Click(timeout)
		}
	}
	return fmt.Errorf("%w: option %q", ErrElementNotFound, value)
}

func (s *Solver) clickNoMistake(page browser.Page) error {
	loc := page.Locator(s.sel.NoMistakeButton)
	if !loc.IsVisible(s.timing.ElementTimeout) {
		return fmt.Errorf("%w: no-mistake control", ErrElementNotFound)
	}
	return loc.Click(s.timing.ElementTimeout)
}

// guard runs fn and turns a panic into an errStepPanic error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStepPanic, r)
		}
	}()
	return fn()
}
