// Package criticalsection exposes the single scope the CLI wraps backup,
// restore, and validate invocations in (spec §5). Deferring SIGTERM/SIGINT
// until the scope exits, then replaying the signal, is the external
// collaborator's job; this package only marks the boundary the deferral
// policy hooks around.
package criticalsection

import "sync/atomic"

var active atomic.Bool

// Run executes fn inside the critical section, marking it active for the
// duration so an external signal handler can observe Active() and defer
// delivery. fn's error is returned unchanged.
func Run(fn func() error) error {
	active.Store(true)
	defer active.Store(false)
	return fn()
}

// Active reports whether a critical section is currently executing. An
// external signal handler polls this (or is notified via its own mechanism)
// to decide whether to defer a received signal.
func Active() bool {
	return active.Load()
}
