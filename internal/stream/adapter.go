// Package stream adapts the push channel into typed, ordered notifications.
// It holds no business logic: payloads are normalized once at this boundary
// and anything that does not fit is dropped with a diagnostic log.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Room scopes the push channel to one event's public view
type Room struct {
	ShareToken string
	Role       string
}

// Sink receives transport lifecycle and event callbacks. Transports may call
// it from any goroutine; the adapter serializes delivery to handlers.
type Sink interface {
	HandleConnected()
	HandleAuthenticated(ok bool)
	HandleDisconnected(err error)
	HandleEvent(name string, data json.RawMessage)
}

// Transport is the opaque bidirectional event source
type Transport interface {
	Open(ctx context.Context, room Room, sink Sink) error
	Close() error
}

// Dispatcher runs a callback as a turn of the owner's loop
type Dispatcher interface {
	Post(f func()) bool
}

// ConnectionState is a point-in-time view of the connectivity flags
type ConnectionState struct {
	Connected     bool `json:"connected"`
	Authenticated bool `json:"authenticated"`
}

// Healthy reports whether push updates can be trusted
func (s ConnectionState) Healthy() bool {
	return s.Connected && s.Authenticated
}

// Handlers are the typed notifications. Nil fields are skipped.
type Handlers struct {
	MediaUploaded        func(MediaUploaded)
	MediaQualityUpgraded func(QualityUpgraded)
	MediaRemoved         func(MediaRemoved)
	StatsUpdated         func(StatsUpdated)
	ViewerCountUpdated   func(ViewerCountUpdated)
	ConnectionChanged    func(ConnectionState)
}

// Stats counts events seen at the boundary
type Stats struct {
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// Adapter is the Event Stream Adapter
type Adapter struct {
	transport  Transport
	dispatcher Dispatcher
	now        func() time.Time
	log        zerolog.Logger

	connected     atomic.Bool
	authenticated atomic.Bool
	received      atomic.Uint64
	dropped       atomic.Uint64

	mu       sync.RWMutex
	handlers map[uint64]Handlers
	nextID   uint64
	opened   bool
}

var _ Sink = (*Adapter)(nil)

// NewAdapter creates an adapter delivering handlers through dispatcher
func NewAdapter(transport Transport, dispatcher Dispatcher, now func() time.Time, logger zerolog.Logger) *Adapter {
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		transport:  transport,
		dispatcher: dispatcher,
		now:        now,
		log:        logger.With().Str("component", "stream").Logger(),
		handlers:   make(map[uint64]Handlers),
	}
}

// Registration ties a Handlers value to the adapter
type Registration struct {
	adapter *Adapter
	id      uint64
	once    sync.Once
}

// Register adds handlers; every registration must be undone with Unregister
func (a *Adapter) Register(h Handlers) *Registration {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	a.handlers[a.nextID] = h
	return &Registration{adapter: a, id: a.nextID}
}

// Unregister removes the handlers. Calling it more than once is safe.
func (r *Registration) Unregister() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.adapter.mu.Lock()
		delete(r.adapter.handlers, r.id)
		r.adapter.mu.Unlock()
	})
}

// Open joins room through the transport
func (a *Adapter) Open(ctx context.Context, room Room) error {
	a.mu.Lock()
	if a.opened {
		a.mu.Unlock()
		return fmt.Errorf("stream already open")
	}
	a.opened = true
	a.mu.Unlock()

	if err := a.transport.Open(ctx, room, a); err != nil {
		a.mu.Lock()
		a.opened = false
		a.mu.Unlock()
		return fmt.Errorf("failed to open push channel: %w", err)
	}
	return nil
}

// Close closes the transport and marks the adapter disconnected
func (a *Adapter) Close() error {
	a.mu.Lock()
	wasOpen := a.opened
	a.opened = false
	a.mu.Unlock()

	a.connected.Store(false)
	a.authenticated.Store(false)
	if !wasOpen {
		return nil
	}
	return a.transport.Close()
}

// State returns the current connectivity flags
func (a *Adapter) State() ConnectionState {
	return ConnectionState{
		Connected:     a.connected.Load(),
		Authenticated: a.authenticated.Load(),
	}
}

// Stats returns boundary counters
func (a *Adapter) Stats() Stats {
	return Stats{Received: a.received.Load(), Dropped: a.dropped.Load()}
}

// HandleConnected marks the transport connected; authentication is pending
func (a *Adapter) HandleConnected() {
	a.connected.Store(true)
	a.log.Info().Msg("push channel connected")
	a.publishState()
}

// HandleAuthenticated records the join/auth outcome
func (a *Adapter) HandleAuthenticated(ok bool) {
	a.authenticated.Store(ok)
	if !ok {
		a.log.Warn().Msg("push channel authentication rejected")
	}
	a.publishState()
}

// HandleDisconnected flips the flags before anything else is dispatched
func (a *Adapter) HandleDisconnected(err error) {
	a.connected.Store(false)
	a.authenticated.Store(false)
	event := a.log.Warn()
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("push channel disconnected")
	a.publishState()
}

// HandleEvent normalizes one physical event and dispatches it
func (a *Adapter) HandleEvent(name string, data json.RawMessage) {
	a.received.Add(1)

	deliver, err := a.normalize(EventName(name), data)
	if err != nil {
		a.dropped.Add(1)
		a.log.Warn().Err(err).Str("event", name).Msg("dropping malformed push event")
		return
	}

	a.dispatch(deliver)
}

// normalize turns raw data into a closure that fans out to one handler kind
func (a *Adapter) normalize(name EventName, data json.RawMessage) (func(Handlers), error) {
	switch name {
	case EventMediaUploaded:
		p, err := normalizeUploaded(data, a.now())
		if err != nil {
			return nil, err
		}
		return func(h Handlers) {
			if h.MediaUploaded != nil {
				h.MediaUploaded(p)
			}
		}, nil
	case EventMediaQualityUpgraded:
		p, err := normalizeUpgraded(data)
		if err != nil {
			return nil, err
		}
		return func(h Handlers) {
			if h.MediaQualityUpgraded != nil {
				h.MediaQualityUpgraded(p)
			}
		}, nil
	case EventMediaRemoved:
		p, err := normalizeRemoved(data)
		if err != nil {
			return nil, err
		}
		return func(h Handlers) {
			if h.MediaRemoved != nil {
				h.MediaRemoved(p)
			}
		}, nil
	case EventStatsUpdated:
		p, err := normalizeStats(data)
		if err != nil {
			return nil, err
		}
		return func(h Handlers) {
			if h.StatsUpdated != nil {
				h.StatsUpdated(p)
			}
		}, nil
	case EventViewerCountUpdated:
		p, err := normalizeViewerCount(data)
		if err != nil {
			return nil, err
		}
		return func(h Handlers) {
			if h.ViewerCountUpdated != nil {
				h.ViewerCountUpdated(p)
			}
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

func (a *Adapter) publishState() {
	state := a.State()
	a.dispatch(func(h Handlers) {
		if h.ConnectionChanged != nil {
			h.ConnectionChanged(state)
		}
	})
}

// dispatch posts one turn that invokes every handler registered at
// delivery time, in registration order
func (a *Adapter) dispatch(deliver func(Handlers)) {
	a.dispatcher.Post(func() {
		for _, h := range a.snapshotHandlers() {
			deliver(h)
		}
	})
}

func (a *Adapter) snapshotHandlers() []Handlers {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]uint64, 0, len(a.handlers))
	for id := range a.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Handlers, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.handlers[id])
	}
	return out
}
