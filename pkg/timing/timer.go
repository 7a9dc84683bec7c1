package timing

import (
	"sync"
	"time"
)

// Sink receives periodic remaining-time reports for display.
type Sink interface {
	Report(sessionID string, left time.Duration)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(sessionID string, left time.Duration)

func (f SinkFunc) Report(sessionID string, left time.Duration) { f(sessionID, left) }

// Timer is one session's countdown. It runs onExpire once when the duration
// elapses and reports the remaining time to a Sink every interval until it
// is stopped or expires.
type Timer struct {
	id       string
	deadline time.Time
	sink     Sink
	onExpire func()

	expiry *time.Timer
	stop   chan struct{}
	done   chan struct{}

	stopOnce  sync.Once
	finalOnce sync.Once
	mu        sync.Mutex
	expired   bool
}

// StartTimer starts a countdown of d for sessionID. A nil sink disables
// reporting; interval <= 0 reports only at start and at expiry.
func StartTimer(sessionID string, d, interval time.Duration, sink Sink, onExpire func()) *Timer {
	t := &Timer{
		id:       sessionID,
		deadline: time.Now().Add(d),
		sink:     sink,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	t.report(d)
	t.expiry = time.AfterFunc(d, t.fire)
	go t.reportLoop(interval)
	return t
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return
	}
	t.expired = true
	t.mu.Unlock()

	t.halt()
	<-t.done
	t.report(0)
	if t.onExpire != nil {
		t.onExpire()
	}
}

func (t *Timer) reportLoop(interval time.Duration) {
	defer close(t.done)
	if interval <= 0 || t.sink == nil {
		<-t.stop
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.report(t.Remaining())
		case <-t.stop:
			return
		}
	}
}

func (t *Timer) report(left time.Duration) {
	if t.sink != nil {
		t.sink.Report(t.id, left)
	}
}

func (t *Timer) halt() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

// Remaining returns the time left, never negative.
func (t *Timer) Remaining() time.Duration {
	left := time.Until(t.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Deadline returns the absolute expiry time.
func (t *Timer) Deadline() time.Time { return t.deadline }

// Expired reports whether the expiry callback ran or is running.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Stop cancels the countdown and the reporter. It is safe to call more than
// once, on a nil Timer and after expiry. A final report of the remaining
// time is sent so the persisted value survives a restart.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.expiry.Stop()
	t.halt()
	<-t.done

	t.finalOnce.Do(func() {
		if !t.Expired() {
			t.report(t.Remaining())
		}
	})
}
