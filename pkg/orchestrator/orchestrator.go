// Package orchestrator drives every configured account: it plans which
// accounts may run and for how long, runs one browser session per account
// concurrently, and tears everything down exactly once at the end or on a
// termination signal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/orthoforge/pkg/accounts"
	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/config"
	"github.com/entrhq/orthoforge/pkg/exercise"
	"github.com/entrhq/orthoforge/pkg/logging"
	"github.com/entrhq/orthoforge/pkg/timing"
)

// storeTimeout bounds account store writes made outside any caller context
// (timer callbacks).
const storeTimeout = 10 * time.Second

// Solver runs one solve attempt on a page.
type Solver interface {
	SolveSingleExercise(ctx context.Context, page browser.Page, sessionID string) exercise.Outcome
}

// PopupHandler deals with the training popup that interrupts exercises.
type PopupHandler interface {
	Present(page browser.Page) bool
	Solve(ctx context.Context, page browser.Page, sessionID string) (handled bool, err error)
}

// TimeStore is where session timers report and where startup reads the
// remaining time persisted by the previous run.
type TimeStore interface {
	timing.Sink
	Get(sessionID string) (timing.Entry, bool)
}

// Plan is one account cleared to run.
type Plan struct {
	Account accounts.Account

	// Remaining is the session time left; zero means unlimited
	Remaining time.Duration
}

// Options wires an Orchestrator.
type Options struct {
	Config   *config.Config
	Registry *browser.Registry
	Accounts accounts.Store
	Times    TimeStore
	Solver   Solver
	Popup    PopupHandler
	Log      *logging.Logger

	// Sleep defaults to exercise.Sleep
	Sleep exercise.SleepFunc
}

// Orchestrator runs all account sessions.
type Orchestrator struct {
	cfg      *config.Config
	registry *browser.Registry
	accounts accounts.Store
	times    TimeStore
	solver   Solver
	popup    PopupHandler
	log      *logging.Logger
	sleep    exercise.SleepFunc
	now      func() time.Time

	expired *ExpiredSet

	shutdownOnce sync.Once
	closing      atomic.Bool
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("orchestrator requires a config")
	case opts.Registry == nil:
		return nil, errors.New("orchestrator requires a session registry")
	case opts.Accounts == nil:
		return nil, errors.New("orchestrator requires an account store")
	case opts.Solver == nil:
		return nil, errors.New("orchestrator requires a solver")
	}

	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Sleep == nil {
		opts.Sleep = exercise.Sleep
	}

	return &Orchestrator{
		cfg:      opts.Config,
		registry: opts.Registry,
		accounts: opts.Accounts,
		times:    opts.Times,
		solver:   opts.Solver,
		popup:    opts.Popup,
		log:      opts.Log,
		sleep:    opts.Sleep,
		now:      time.Now,
		expired:  NewExpiredSet(),
	}, nil
}

// Expired returns the set of accounts whose time ran out.
func (o *Orchestrator) Expired() *ExpiredSet { return o.expired }

// Run plans the accounts, runs them all concurrently and returns when every
// account has finished. One account failing never stops another. All
// sessions are closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.Shutdown()

	plans, err := o.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		o.log.Infof("no runnable accounts")
		return nil
	}
	o.log.Infof("starting %d account session(s)", len(plans))

	// Goroutines always return nil so the group never cancels siblings.
	var g errgroup.Group
	for _, plan := range plans {
		g.Go(func() error {
			if err := o.RunAccount(ctx, plan); err != nil {
				o.log.With(plan.Account.ID).Errorf("account stopped: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	o.log.Infof("all account sessions finished")
	return nil
}

// Plan loads the accounts and decides which ones run and for how long.
// Accounts whose time is used up are disabled in the store.
func (o *Orchestrator) Plan(ctx context.Context) ([]Plan, error) {
	list, err := o.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	patterns, err := o.accounts.ActiveSubset(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active accounts: %w", err)
	}
	filter, err := accounts.NewActiveFilter(patterns)
	if err != nil {
		return nil, err
	}

	now := o.now()
	var plans []Plan
	for _, account := range list {
		logger := o.log.With(account.ID)

		var persisted *timing.Entry
		if o.times != nil {
			if e, ok := o.times.Get(account.ID); ok {
				persisted = &e
			}
		}

		decision := timing.Reconcile(account, persisted, now)
		switch {
		case decision.Expired || (decision.Limited && decision.Remaining <= 0):
			o.expired.Add(account.ID)
			if account.IsEnabled {
				account.IsEnabled = false
				if err := o.accounts.Update(ctx, account); err != nil {
					logger.Warnf("failed to disable expired account: %v", err)
				}
				logger.Infof("session time used up, account disabled")
			}
			continue
		case decision.Extended:
			o.expired.Remove(account.ID)
			if !account.IsEnabled {
				account.IsEnabled = true
				if err := o.accounts.Update(ctx, account); err != nil {
					logger.Warnf("failed to re-enable extended account: %v", err)
				}
				logger.Infof("session extended until %s, account re-enabled", account.SessionEnd.Format(time.RFC3339))
			}
		}

		if !filter.Match(account.ID) {
			logger.Debugf("not in the active subset, skipping")
			continue
		}
		if o.expired.Has(account.ID) || !account.Runnable() {
			logger.Debugf("disabled or expired, skipping")
			continue
		}

		if decision.Limited {
			logger.Infof("session time left: %s", timing.FormatRemaining(decision.Remaining))
		}
		plans = append(plans, Plan{Account: account, Remaining: decision.Remaining})
	}
	return plans, nil
}
