package timing

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler for tests. Time only moves through
// Advance, and Post runs turns synchronously unless a turn is already
// running, in which case the new turn is queued behind it. Manual is not
// safe for concurrent use.
type Manual struct {
	now     time.Time
	seq     int
	timers  []*manualTimer
	queue   []func()
	running bool
	work    []func() func()

	// AutoRunWork makes Go execute work inline instead of parking it until RunWork
	AutoRunWork bool
}

var _ Scheduler = (*Manual)(nil)

// NewManual creates a manual scheduler starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual time
func (m *Manual) Now() time.Time {
	return m.now
}

// Post runs f as a turn
func (m *Manual) Post(f func()) bool {
	m.queue = append(m.queue, f)
	if !m.running {
		m.drain()
	}
	return true
}

// AfterFunc registers f to run once Advance passes now+d
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Go parks work until RunWork, or runs it inline when AutoRunWork is set
func (m *Manual) Go(work func() func()) {
	if m.AutoRunWork {
		if next := work(); next != nil {
			m.Post(next)
		}
		return
	}
	m.work = append(m.work, work)
}

// RunWork executes all parked work and runs the continuations as turns
func (m *Manual) RunWork() {
	pending := m.work
	m.work = nil
	for _, w := range pending {
		if next := w(); next != nil {
			m.Post(next)
		}
	}
}

// PendingWork returns the number of parked work functions
func (m *Manual) PendingWork() int {
	return len(m.work)
}

// PendingTimers returns the number of live timers
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing due timers in deadline order
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.at
		t.fired = true
		m.Post(t.f)
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(m.timers) == 0 {
		return nil
	}

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})

	if first := m.timers[0]; !first.at.After(target) {
		return first
	}
	return nil
}

func (m *Manual) drain() {
	m.running = true
	defer func() { m.running = false }()

	for len(m.queue) > 0 {
		f := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		f()
	}
}

type manualTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
