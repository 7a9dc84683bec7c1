package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/logging"
	"github.com/entrhq/orthoforge/pkg/timing"
)

// ErrRestartRequired is returned by a session that the solver asked to tear
// down.
var ErrRestartRequired = errors.New("orchestrator: browser restart required")

// RunAccount runs one account until its time is up, the context ends, the
// orchestrator shuts down, or the session fails for good. A restart signal
// relaunches the browser up to Limits.MaxRestarts times.
func (o *Orchestrator) RunAccount(ctx context.Context, plan Plan) error {
	id := plan.Account.ID
	logger := o.log.With(id)

	if plan.Remaining > 0 {
		timer := timing.StartTimer(id, plan.Remaining, o.cfg.Timing.ReportInterval, o.times, func() {
			o.expire(id)
		})
		defer timer.Stop()
		logger.Infof("session timer started, expires at %s", timer.Deadline().Format(time.TimeOnly))
	}

	for restarts := 0; ; restarts++ {
		err := o.runSession(ctx, plan)

		switch {
		case o.expired.Has(id):
			logger.Infof("session ended: time is up")
			return nil
		case o.closing.Load():
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			return nil
		case errors.Is(err, ErrRestartRequired), errors.Is(err, browser.ErrPageClosed):
			if restarts >= o.cfg.Limits.MaxRestarts {
				return fmt.Errorf("giving up after %d restart(s): %w", restarts, err)
			}
			logger.Warnf("restarting browser (%d/%d): %v", restarts+1, o.cfg.Limits.MaxRestarts, err)
		default:
			return err
		}
	}
}

// runSession launches the browser, logs in and runs the exercise loop. The
// browser is closed on return.
func (o *Orchestrator) runSession(ctx context.Context, plan Plan) error {
	id := plan.Account.ID
	if o.expired.Has(id) || o.closing.Load() {
		return nil
	}

	session, err := o.registry.InitializeBrowserSession(ctx, id, o.cfg.Browser.LaunchOptions())
	if err != nil {
		return err
	}
	defer o.registry.CloseBrowserSession(id)

	if err := o.Login(ctx, session.Page, plan.Account); err != nil {
		return err
	}
	return o.loop(ctx, session.Page, id)
}

// loop selects exercises and solves them until the page goes away.
func (o *Orchestrator) loop(ctx context.Context, page browser.Page, id string) error {
	logger := o.log.With(id)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if page.IsClosed() {
			return browser.ErrPageClosed
		}
		if o.expired.Has(id) || o.closing.Load() {
			return nil
		}

		o.waitStable(page, logger)

		selected, err := o.SelectNextExercise(page, id)
		if err != nil {
			if errors.Is(err, browser.ErrPageClosed) {
				return err
			}
			logger.Warnf("exercise selection failed: %v", err)
		}
		if !selected {
			logger.Debugf("no runnable exercise, retrying in %s", o.cfg.Timing.SelectionBackoff)
			if err := o.sleep(ctx, o.cfg.Timing.SelectionBackoff); err != nil {
				return err
			}
			continue
		}

		if restart := o.solveExercise(ctx, page, id); restart {
			return ErrRestartRequired
		}
	}
}

// solveExercise alternates popup checks and solve attempts on the selected
// exercise. It reports whether the session must restart; otherwise control
// goes back to exercise selection.
func (o *Orchestrator) solveExercise(ctx context.Context, page browser.Page, id string) (restart bool) {
	logger := o.log.With(id)

	for {
		if ctx.Err() != nil || page.IsClosed() || o.expired.Has(id) {
			return false
		}

		if o.popup != nil && o.popup.Present(page) {
			if _, err := o.popup.Solve(ctx, page, id); err != nil {
				logger.Warnf("training popup: %v", err)
			}
			if o.popup.Present(page) {
				logger.Warnf("training popup still open, back to selection")
				return false
			}
			continue
		}

		out := o.solver.SolveSingleExercise(ctx, page, id)
		switch {
		case out.RestartBrowser:
			logger.Warnf("solver requested a restart: %v", out.Err)
			return true
		case out.ExerciseComplete:
			logger.Infof("exercise finished, selecting the next one")
			return false
		case !out.Success:
			if out.Err != nil {
				logger.Warnf("solve attempt failed, back to selection: %v", out.Err)
			}
			return false
		}
	}
}

func (o *Orchestrator) waitStable(page browser.Page, logger *logging.Logger) {
	if err := page.WaitForLoadState(browser.LoadStateNetworkIdle, o.cfg.Timing.StableTimeout); err != nil {
		logger.Debugf("page did not settle: %v", err)
	}
}

// expire runs when an account's timer fires: the account is marked expired,
// disabled in the store and its browser is closed.
func (o *Orchestrator) expire(id string) {
	logger := o.log.With(id)
	o.expired.Add(id)
	logger.Infof("session time is up, closing browser")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	account, err := o.accounts.Get(ctx, id)
	if err != nil {
		logger.Warnf("failed to load expired account: %v", err)
	} else {
		now := o.now()
		account.IsEnabled = false
		account.SessionEnd = &now
		if err := o.accounts.Update(ctx, account); err != nil {
			logger.Errorf("failed to disable expired account, it will get a fresh session on next start: %v", err)
		}
	}

	o.registry.CloseBrowserSession(id)
}
