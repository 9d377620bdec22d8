package timing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Loop is the real-time Scheduler: one goroutine draining an unbounded FIFO
// of turns. Posting from inside a turn never blocks.
type Loop struct {
	log zerolog.Logger

	mu      sync.Mutex
	pending []func()
	closed  bool
	started bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a loop; call Start to begin draining turns
func NewLoop(logger zerolog.Logger) *Loop {
	return &Loop{
		log:     logger.With().Str("component", "loop").Logger(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.closed {
		return
	}
	l.started = true
	go l.run()
}

// Close stops accepting turns and signals the loop goroutine to exit after
// the current turn. It does not wait; use Done for that.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.pending = nil
	started := l.started
	l.mu.Unlock()

	close(l.done)
	if !started {
		close(l.stopped)
	}
}

// Done is closed once the loop goroutine has exited
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// Now returns the wall clock time
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues f as a turn
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc schedules f as a turn after d
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.fired.Store(true)
			f()
		})
	})
	return lt
}

// Go runs work on its own goroutine and posts its continuation
func (l *Loop) Go(work func() func()) {
	go func() {
		if next := work(); next != nil {
			l.Post(next)
		}
	}()
}

func (l *Loop) run() {
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			select {
			case <-l.done:
				return
			default:
			}

			f, ok := l.next()
			if !ok {
				break
			}
			l.turn(f)
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil, false
	}
	f := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return f, true
}

// turn runs one callback; a panicking handler must not take the wall down
func (l *Loop) turn(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("loop turn panicked")
		}
	}()
	f()
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.timer.Stop()
	return !t.fired.Load()
}
