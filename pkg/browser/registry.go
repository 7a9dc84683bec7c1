package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/entrhq/orthoforge/pkg/concurrency"
	"github.com/entrhq/orthoforge/pkg/logging"
)

// Registry tracks the live browser session of every account. It guarantees
// at most one session per id and bounds the number of open browsers with a
// semaphore: a slot is taken when a session is launched and given back when
// that session is closed (or when its launch fails).
type Registry struct {
	driver      Driver
	profileRoot string
	log         *logging.Logger

	slots    *concurrency.Semaphore
	mu       *concurrency.Mutex
	sessions map[string]*Session

	// launches collapses concurrent first-time initializations of the same
	// id into a single launch.
	launches singleflight.Group

	now func() time.Time
}

// NewRegistry creates a registry that launches browsers through driver, keeps
// profiles under profileRoot and allows at most maxBrowsers open at once.
func NewRegistry(driver Driver, profileRoot string, maxBrowsers int, log *logging.Logger) (*Registry, error) {
	slots, err := concurrency.NewSemaphore("browser sessions", maxBrowsers)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{
		driver:      driver,
		profileRoot: profileRoot,
		log:         log,
		slots:       slots,
		mu:          concurrency.NewMutex(),
		sessions:    make(map[string]*Session),
		now:         time.Now,
	}, nil
}

// InitializeBrowserSession returns the session for id, launching one if none
// exists. Repeated and concurrent calls for the same id yield the same
// session and a single launch.
func (r *Registry) InitializeBrowserSession(ctx context.Context, id string, opts LaunchOptions) (*Session, error) {
	if s, ok := r.GetSession(id); ok {
		r.log.With(id).Warnf("browser session already initialized, reusing it")
		return s, nil
	}

	for {
		ch := r.launches.DoChan(id, func() (interface{}, error) {
			return r.launch(ctx, id, opts)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				// A joined launch runs under the first caller's context. If that
				// context ended while ours is still live, launch again.
				if res.Shared && ctx.Err() == nil && isContextErr(res.Err) {
					r.log.With(id).Debugf("joined launch was cancelled, retrying")
					continue
				}
				return nil, res.Err
			}
			if res.Shared {
				r.log.With(id).Debugf("joined an in-flight launch")
			}
			return res.Val.(*Session), nil
		case <-ctx.Done():
			return nil, fmt.Errorf("browser session %q: %w", id, ctx.Err())
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Registry) launch(ctx context.Context, id string, opts LaunchOptions) (*Session, error) {
	logger := r.log.With(id)

	if err := r.slots.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("browser session %q: %w", id, err)
	}

	// The slot now belongs to this launch until it is registered or fails.
	registered := false
	defer func() {
		if !registered {
			r.slots.Release()
		}
	}()

	// Another launch may have registered while we waited for a slot.
	existing, err := concurrency.RunExclusive(ctx, r.mu, func() (*Session, error) {
		return r.sessions[id], nil
	})
	if err != nil {
		return nil, fmt.Errorf("browser session %q: %w", id, err)
	}
	if existing != nil {
		logger.Warnf("browser session already initialized, reusing it")
		return existing, nil
	}

	dir, err := profileDir(r.profileRoot, id)
	if err != nil {
		return nil, fmt.Errorf("browser session %q: %w", id, err)
	}

	logger.Infof("launching browser (profile %s, %d/%d slots in use)", dir, r.slots.InUse(), r.slots.Max())
	bctx, page, err := r.driver.Launch(ctx, dir, opts)
	if err != nil {
		if bctx != nil {
			if cerr := bctx.Close(); cerr != nil {
				logger.Warnf("cleanup after failed launch: %v", cerr)
			}
		}
		return nil, fmt.Errorf("browser session %q: %w", id, err)
	}

	session := &Session{
		ID:         id,
		Context:    bctx,
		Page:       page,
		ProfileDir: dir,
		CreatedAt:  r.now(),
	}

	err = concurrency.Do(context.WithoutCancel(ctx), r.mu, func() error {
		r.sessions[id] = session
		return nil
	})
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("browser session %q: %w", id, err)
	}
	registered = true

	logger.Infof("browser session ready")
	return session, nil
}

// GetSession returns the live session for id, if any.
func (r *Registry) GetSession(id string) (*Session, bool) {
	s, _ := concurrency.RunExclusive(context.Background(), r.mu, func() (*Session, error) {
		return r.sessions[id], nil
	})
	return s, s != nil
}

// CloseBrowserSession closes the session for id. Closing an unknown or
// already closed session is a logged no-op. Teardown errors are logged and
// never returned, so closing one session cannot block closing others.
func (r *Registry) CloseBrowserSession(id string) {
	logger := r.log.With(id)

	// Remove the binding first so concurrent closers never double-close.
	session, _ := concurrency.RunExclusive(context.Background(), r.mu, func() (*Session, error) {
		s := r.sessions[id]
		delete(r.sessions, id)
		return s, nil
	})
	if session == nil {
		logger.Debugf("no browser session to close")
		return
	}
	defer r.slots.Release()

	if session.Page != nil && !session.Page.IsClosed() {
		if err := session.Page.Close(); err != nil {
			logger.Warnf("failed to close page: %v", err)
		}
	}
	if session.Context != nil {
		browserProc := session.Context.Browser()
		if err := session.Context.Close(); err != nil {
			logger.Warnf("failed to close browser context: %v", err)
		}
		if browserProc != nil {
			if err := browserProc.Close(); err != nil {
				logger.Warnf("failed to close browser: %v", err)
			}
		}
	}
	logger.Infof("browser session closed")
}

// CloseAllBrowserSessions closes every session registered at call time, one
// after the other.
func (r *Registry) CloseAllBrowserSessions() {
	ids := r.GetActiveSessionIds()
	for _, id := range ids {
		r.CloseBrowserSession(id)
	}
	if len(ids) > 0 {
		r.log.Infof("closed %d browser session(s)", len(ids))
	}
}

// GetActiveSessionIds returns a sorted snapshot of the registered ids.
func (r *Registry) GetActiveSessionIds() []string {
	ids, _ := concurrency.RunExclusive(context.Background(), r.mu, func() ([]string, error) {
		ids := make([]string, 0, len(r.sessions))
		for id := range r.sessions {
			ids = append(ids, id)
		}
		return ids, nil
	})
	sort.Strings(ids)
	return ids
}

// OpenBrowsers reports how many browser slots are held.
func (r *Registry) OpenBrowsers() int {
	return r.slots.InUse()
}
