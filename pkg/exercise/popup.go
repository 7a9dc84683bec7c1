package exercise

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/config"
	"github.com/entrhq/orthoforge/pkg/logging"
)

// popupPoll is the pause between scans when no question is ready yet.
const popupPoll = 500 * time.Millisecond

// PopupSolver answers the yes/no questions of the training popup with the
// pattern table of Classify. It never calls the language model.
type PopupSolver struct {
	Selectors     config.Selectors
	MaxIterations int
	MaxDuration   time.Duration
	Timeout       time.Duration
	Sleep         SleepFunc
	Log           *logging.Logger

	now func() time.Time
}

// NewPopupSolver builds a popup solver from the popup and timing config.
func NewPopupSolver(sel config.Selectors, popup config.PopupConfig, timeout time.Duration, log *logging.Logger) *PopupSolver {
	if log == nil {
		log = logging.Discard()
	}
	return &PopupSolver{
		Selectors:     sel,
		MaxIterations: popup.MaxIterations,
		MaxDuration:   popup.MaxDuration,
		Timeout:       timeout,
		Sleep:         Sleep,
		Log:           log,
		now:           time.Now,
	}
}

// Present reports whether the popup is currently shown.
func (p *PopupSolver) Present(page browser.Page) bool {
	return page.Locator(p.Selectors.Popup).IsVisible(0)
}

// Solve waits briefly for the popup and works through its questions. It
// returns handled=false when no popup showed up. The loop stops when the
// popup disappears, when the exit control is clicked, or when either cap is
// reached.
func (p *PopupSolver) Solve(ctx context.Context, page browser.Page, sessionID string) (handled bool, err error) {
	logger := p.Log.With(sessionID)
	sel := p.Selectors

	popup := page.Locator(sel.Popup)
	if err := popup.WaitFor(browser.StateVisible, p.Timeout); err != nil {
		return false, nil
	}
	logger.Infof("training popup detected")

	if sel.PopupUnderstood != "" {
		if ack := page.Locator(sel.PopupUnderstood); ack.IsVisible(p.Timeout) {
			if err := ack.Click(p.Timeout); err != nil {
				logger.Warnf("failed to dismiss popup introduction: %v", err)
			}
		}
	}

	deadline := p.now().Add(p.MaxDuration)
	answered := 0
	for i := 0; i < p.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if page.IsClosed() {
			return true, browser.ErrPageClosed
		}
		if p.now().After(deadline) {
			logger.Warnf("popup time cap of %s reached after %d answers", p.MaxDuration, answered)
			return true, nil
		}
		if !popup.IsVisible(0) {
			logger.Infof("popup closed after %d answers", answered)
			return true, nil
		}

		q, ok, err := p.nextQuestion(page)
		if err != nil {
			return true, err
		}
		if !ok {
			if sel.PopupExit != "" {
				if exit := page.Locator(sel.PopupExit); exit.IsVisible(0) {
					if err := exit.Click(p.Timeout); err != nil {
						logger.Warnf("failed to click popup exit: %v", err)
					} else {
						logger.Infof("popup exited after %d answers", answered)
						return true, nil
					}
				}
			}
			if err := p.Sleep(ctx, popupPoll); err != nil {
				return true, err
			}
			continue
		}

		if err := p.answer(q, logger); err != nil {
			logger.Warnf("popup answer failed: %v", err)
			continue
		}
		answered++
	}

	logger.Warnf("popup iteration cap of %d reached after %d answers", p.MaxIterations, answered)
	return true, nil
}

// nextQuestion finds the first visible question that is not done yet and
// still shows a decision button.
func (p *PopupSolver) nextQuestion(page browser.Page) (browser.Locator, bool, error) {
	sel := p.Selectors
	questions := page.Locator(sel.PopupQuestion)
	n, err := questions.Count()
	if err != nil {
		return nil, false, err
	}

	for i := 0; i < n; i++ {
		q := questions.Nth(i)
		if !q.IsVisible(0) {
			continue
		}
		if sel.PopupQuestionDone != "" {
			if done, _ := q.Locator(sel.PopupQuestionDone).Count(); done > 0 {
				continue
			}
		}
		if q.Locator(sel.PopupCorrectButton).IsVisible(0) || q.Locator(sel.PopupWrongButton).IsVisible(0) {
			return q, true, nil
		}
	}
	return nil, false, nil
}

func (p *PopupSolver) answer(q browser.Locator, logger *logging.Logger) error {
	sel := p.Selectors

	text, err := q.Locator(sel.PopupQuestionText).TextContent(p.Timeout)
	if err != nil {
		return fmt.Errorf("read question: %w", err)
	}

	correct, rule := Classify(text)
	button := q.Locator(sel.PopupCorrectButton)
	if !correct {
		button = q.Locator(sel.PopupWrongButton)
		logger.Debugf("popup sentence rejected by %q: %s", rule, text)
	} else {
		logger.Debugf("popup sentence accepted: %s", text)
	}

	if err := button.Click(p.Timeout); err != nil {
		return fmt.Errorf("click answer: %w", err)
	}
	if err := button.WaitFor(browser.StateHidden, p.Timeout); err != nil {
		logger.Debugf("answer button still visible: %v", err)
	}
	return nil
}
