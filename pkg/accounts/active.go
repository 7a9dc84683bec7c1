package accounts

import (
	"fmt"

	"github.com/gobwas/glob"
)

// ActiveFilter matches account ids against the operator's active subset.
// Each entry is a glob pattern ("team-*", "alice", "{bob,carol}").
type ActiveFilter struct {
	patterns []glob.Glob
}

// NewActiveFilter compiles patterns. An empty list yields a filter that
// admits every account.
func NewActiveFilter(patterns []string) (*ActiveFilter, error) {
	f := &ActiveFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid active account pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// Match reports whether id is in the active subset.
func (f *ActiveFilter) Match(id string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	for _, g := range f.patterns {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// Filter returns the accounts admitted by f, preserving order.
func (f *ActiveFilter) Filter(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if f.Match(a.ID) {
			out = append(out, a)
		}
	}
	return out
}
