package orchestrator

// Shutdown closes every browser session. Only the first call has an effect,
// so the signal handler and the normal end of Run can both call it.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.closing.Store(true)
		o.log.Infof("shutting down, closing %d browser session(s)", len(o.registry.GetActiveSessionIds()))
		o.registry.CloseAllBrowserSessions()
	})
}

// ShuttingDown reports whether Shutdown has been called.
func (o *Orchestrator) ShuttingDown() bool {
	return o.closing.Load()
}
