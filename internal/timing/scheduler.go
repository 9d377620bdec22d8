// Package timing provides the single-threaded execution model of the wall
// engine: every handler, timer callback and pull completion runs as one
// non-reentrant turn of a loop.
package timing

import "time"

// Timer is a pending callback that can be cancelled
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// Scheduler serializes callbacks onto one logical thread
type Scheduler interface {
	// Now returns the scheduler's notion of the current time
	Now() time.Time
	// AfterFunc runs f as a loop turn once d has elapsed. A stopped timer
	// never runs f, even when it had already expired.
	AfterFunc(d time.Duration, f func()) Timer
	// Post runs f as a loop turn. It reports false when the loop is closed.
	Post(f func()) bool
	// Go runs work off the loop. The function work returns, if not nil,
	// runs afterwards as a loop turn.
	Go(work func() func())
}
