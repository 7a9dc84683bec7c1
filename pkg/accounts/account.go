// Package accounts persists the platform accounts the orchestrator drives,
// along with the optional active subset selected by the operator.
package accounts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no account has the requested id.
	ErrNotFound = errors.New("accounts: account not found")

	// ErrDuplicate is returned when adding an id that already exists.
	ErrDuplicate = errors.New("accounts: duplicate account id")
)

// Account is one automatable platform identity.
type Account struct {
	ID       string `yaml:"id" toml:"id" json:"id"`
	Email    string `yaml:"email" toml:"email" json:"email"`
	Password string `yaml:"password" toml:"password" json:"password"`

	// SessionDuration is "Nh" or "N.Mh"; empty means unlimited
	SessionDuration string `yaml:"sessionDuration,omitempty" toml:"sessionDuration,omitempty" json:"sessionDuration,omitempty"`

	IsEnabled bool `yaml:"isEnabled" toml:"isEnabled" json:"isEnabled"`

	// SessionEnd is the absolute expiry. It is written when the session
	// time runs out; moving it into the future re-enables the account.
	SessionEnd *time.Time `yaml:"sessionEnd,omitempty" toml:"sessionEnd,omitempty" json:"sessionEnd,omitempty"`
}

// Validate checks the fields every account needs.
func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(a.Email) == "" {
		return fmt.Errorf("account %q: email is required", a.ID)
	}
	if a.Password == "" {
		return fmt.Errorf("account %q: password is required", a.ID)
	}
	return nil
}

// Runnable reports whether the account may be scheduled.
func (a Account) Runnable() bool {
	return a.IsEnabled
}
