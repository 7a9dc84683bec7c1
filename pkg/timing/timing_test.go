package timing

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/orthoforge/pkg/accounts"
	"github.com/entrhq/orthoforge/pkg/logging"
)

func TestParseSessionDuration(t *testing.T) {
	tests := []struct {
		in     string
		wantMs int64
		wantOK bool
	}{
		{"2h", 7200000, true},
		{"1.5h", 5400000, true},
		{"0.01h", 36000, true},
		{" 3H ", 10800000, true},
		{"0h", 0, false},
		{"0.0h", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"2", 0, false},
		{"-1h", 0, false},
		{"1.h", 0, false},
		{"2h30m", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := ParseSessionDuration(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMs, d.Milliseconds())
		})
	}
}

type recordingSink struct {
	mu      sync.Mutex
	reports []time.Duration
}

func (s *recordingSink) Report(_ string, left time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, left)
}

func (s *recordingSink) snapshot() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.reports...)
}

func TestTimer_Expires(t *testing.T) {
	sink := &recordingSink{}
	fired := make(chan struct{})

	timer := StartTimer("alice", 60*time.Millisecond, 10*time.Millisecond, sink, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	assert.True(t, timer.Expired())
	reports := sink.snapshot()
	require.GreaterOrEqual(t, len(reports), 3)
	assert.Equal(t, 60*time.Millisecond, reports[0])
	assert.Equal(t, time.Duration(0), reports[len(reports)-1])
}

func TestTimer_StopPreventsExpiry(t *testing.T) {
	sink := &recordingSink{}
	fired := false
	timer := StartTimer("bob", 50*time.Millisecond, time.Hour, sink, func() { fired = true })

	timer.Stop()
	timer.Stop()
	time.Sleep(100 * time.Millisecond)

	assert.False(t, fired)
	assert.False(t, timer.Expired())
	// start + one final report
	assert.Len(t, sink.snapshot(), 2)
}

func TestTimer_StopNil(t *testing.T) {
	var timer *Timer
	assert.NotPanics(t, timer.Stop)
}

func TestTimer_StopFromExpiryCallback(t *testing.T) {
	started := make(chan *Timer, 1)
	done := make(chan struct{})
	started <- StartTimer("carol", 10*time.Millisecond, 0, nil, func() {
		(<-started).Stop()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop from callback deadlocked")
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "times", "session-times.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	store.Report("alice", 90*time.Second)
	store.Report("bob", -time.Second)

	reloaded, err := NewFileStore(path, nil)
	require.NoError(t, err)

	e, ok := reloaded.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, e.Remaining())

	e, ok = reloaded.Get("bob")
	require.True(t, ok)
	assert.Equal(t, int64(0), e.TimeLeftMs)

	assert.Equal(t, []string{"alice", "bob"}, reloaded.IDs())

	require.NoError(t, reloaded.Forget("alice"))
	_, ok = reloaded.Get("alice")
	assert.False(t, ok)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-times.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path, nil)
	assert.Error(t, err)
}

func TestFileStore_ReportLogsSaveFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "session-times.json")

	var buf bytes.Buffer
	store, err := NewFileStore(path, logging.NewWriterLogger("timing", &buf, logging.LevelDebug))
	require.NoError(t, err)

	// A regular file where the directory should be makes every save fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state"), []byte("x"), 0600))

	store.Report("alice", 0)

	e, ok := store.Get("alice")
	require.True(t, ok)
	assert.Equal(t, int64(0), e.TimeLeftMs)

	out := buf.String()
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "[alice]")
	assert.Contains(t, out, "failed to save remaining time")
}

func TestReconcile(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(20 * time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name      string
		account   accounts.Account
		persisted *Entry
		want      Decision
	}{
		{
			name:    "unlimited",
			account: accounts.Account{SessionDuration: ""},
			want:    Decision{},
		},
		{
			name:    "fresh",
			account: accounts.Account{SessionDuration: "2h"},
			want:    Decision{Limited: true, Remaining: 2 * time.Hour},
		},
		{
			name:      "resumes persisted time",
			account:   accounts.Account{SessionDuration: "2h"},
			persisted: &Entry{TimeLeftMs: (30 * time.Minute).Milliseconds()},
			want:      Decision{Limited: true, Remaining: 30 * time.Minute},
		},
		{
			name:      "persisted capped by configured duration",
			account:   accounts.Account{SessionDuration: "1h"},
			persisted: &Entry{TimeLeftMs: (3 * time.Hour).Milliseconds()},
			want:      Decision{Limited: true, Remaining: time.Hour},
		},
		{
			name:      "used up",
			account:   accounts.Account{SessionDuration: "1h", SessionEnd: &past},
			persisted: &Entry{TimeLeftMs: 0},
			want:      Decision{Limited: true, Expired: true},
		},
		{
			name:      "extended externally",
			account:   accounts.Account{SessionDuration: "1h", SessionEnd: &future},
			persisted: &Entry{TimeLeftMs: 0},
			want:      Decision{Limited: true, Remaining: 20 * time.Minute, Extended: true},
		},
		{
			name:      "reset by operator",
			account:   accounts.Account{SessionDuration: "1h"},
			persisted: &Entry{TimeLeftMs: 0},
			want:      Decision{Limited: true, Remaining: time.Hour},
		},
		{
			name:      "expiry without sessionEnd counts as reset",
			account:   accounts.Account{SessionDuration: "1h", IsEnabled: true},
			persisted: &Entry{TimeLeftMs: 0, UpdatedAt: past},
			want:      Decision{Limited: true, Remaining: time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.account, tt.persisted, now))
		})
	}
}
