package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/orthoforge/pkg/accounts"
	"github.com/entrhq/orthoforge/pkg/browser"
)

// ErrLoginFailed is returned when the exercise list never shows up after
// submitting the login form.
var ErrLoginFailed = errors.New("orchestrator: login failed")

// Login opens the exercise list, signing in first when the persistent
// profile holds no valid platform session.
func (o *Orchestrator) Login(ctx context.Context, page browser.Page, account accounts.Account) error {
	logger := o.log.With(account.ID)
	platform := o.cfg.Platform
	sel := o.cfg.Selectors
	timeout := o.cfg.Timing.ElementTimeout
	navTimeout := o.cfg.Browser.Timeout

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := page.Goto(platform.ExercisesURL, navTimeout); err != nil {
		return fmt.Errorf("failed to open exercise list: %w", err)
	}
	if o.loggedIn(page) {
		logger.Infof("already logged in")
		return nil
	}

	logger.Infof("logging in as %s", account.Email)
	if err := page.Goto(platform.LoginURL, navTimeout); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := page.Locator(sel.LoginEmail).Fill(account.Email, timeout); err != nil {
		return fmt.Errorf("failed to fill email: %w", err)
	}
	if err := page.Locator(sel.LoginPassword).Fill(account.Password, timeout); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	if err := page.Locator(sel.LoginSubmit).Click(timeout); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}
	if err := page.WaitForLoadState(browser.LoadStateNetworkIdle, o.cfg.Timing.StableTimeout); err != nil {
		logger.Debugf("login page did not settle: %v", err)
	}

	if o.loggedIn(page) {
		logger.Infof("logged in")
		return nil
	}

	// Some logins land on a landing page rather than the exercise list.
	if err := page.Goto(platform.ExercisesURL, navTimeout); err != nil {
		return fmt.Errorf("failed to open exercise list: %w", err)
	}
	if o.loggedIn(page) {
		logger.Infof("logged in")
		return nil
	}
	return fmt.Errorf("%w for %s", ErrLoginFailed, account.Email)
}

func (o *Orchestrator) loggedIn(page browser.Page) bool {
	marker := o.cfg.Selectors.LoggedInMarker
	if marker == "" {
		return true
	}
	return page.Locator(marker).IsVisible(o.cfg.Timing.ElementTimeout)
}
