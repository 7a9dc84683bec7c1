package timing

import (
	"time"

	"github.com/entrhq/orthoforge/pkg/accounts"
)

// Decision is the startup verdict for one account.
type Decision struct {
	// Limited is false for unlimited sessions
	Limited bool

	// Remaining is the time to run when Limited
	Remaining time.Duration

	// Expired means the account has no time left and must be disabled
	Expired bool

	// Extended means sessionEnd was pushed into the future externally, so a
	// previous expiry no longer holds
	Extended bool
}

// Reconcile decides how long an account may still run.
//
// In order of precedence: a sessionEnd in the future wins (the session was
// started or extended and that deadline still holds); then a positive
// persisted remaining time, capped by the configured duration; then a
// sessionEnd in the past means the time is used up; otherwise the account
// starts a fresh session of its configured duration. A persisted zero with
// no sessionEnd is therefore a reset: clearing sessionEnd by hand grants a
// new session, and so does an expiry whose account update never landed.
func Reconcile(account accounts.Account, persisted *Entry, now time.Time) Decision {
	d, limited := ParseSessionDuration(account.SessionDuration)
	if !limited {
		return Decision{}
	}

	if end := account.SessionEnd; end != nil && end.After(now) {
		return Decision{Limited: true, Remaining: end.Sub(now), Extended: true}
	}

	if persisted != nil && persisted.TimeLeftMs > 0 {
		left := persisted.Remaining()
		if left > d {
			left = d
		}
		return Decision{Limited: true, Remaining: left}
	}

	if account.SessionEnd != nil {
		return Decision{Limited: true, Expired: true}
	}

	return Decision{Limited: true, Remaining: d}
}
