// Package activity keeps the transient UI indicators raised by push events.
package activity

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/timing"
)

// Kind names one transient indicator
type Kind string

const (
	KindUploading       Kind = "uploading"
	KindQualityUpgraded Kind = "quality_upgraded"
	KindRemoving        Kind = "removing"
)

// Durations are the clear delays per kind
type Durations struct {
	Uploading       time.Duration `yaml:"uploading"`
	QualityUpgraded time.Duration `yaml:"quality_upgraded"`
	Removing        time.Duration `yaml:"removing"`
}

// DefaultDurations returns 3s for uploads and removals and 2s for upgrades
func DefaultDurations() Durations {
	return Durations{
		Uploading:       3 * time.Second,
		QualityUpgraded: 2 * time.Second,
		Removing:        3 * time.Second,
	}
}

func (d Durations) forKind(kind Kind) time.Duration {
	switch kind {
	case KindUploading:
		return d.Uploading
	case KindQualityUpgraded:
		return d.QualityUpgraded
	default:
		return d.Removing
	}
}

// Snapshot is the observable activity state
type Snapshot struct {
	Uploading          bool   `json:"uploading"`
	QualityUpgraded    bool   `json:"qualityUpgraded"`
	Removing           bool   `json:"removing"`
	NewMediaCount      uint64 `json:"newMediaCount"`
	UpgradedMediaCount uint64 `json:"upgradedMediaCount"`
	RemovedMediaCount  uint64 `json:"removedMediaCount"`
}

type flag struct {
	pending int
	count   uint64
}

// Notifier is the Activity Notifier. It must only be used from loop turns.
type Notifier struct {
	sched     timing.Scheduler
	durations Durations
	log       zerolog.Logger

	flags  map[Kind]*flag
	timers map[timing.Timer]struct{}
	closed bool
}

// NewNotifier creates a notifier with all flags cleared
func NewNotifier(sched timing.Scheduler, durations Durations, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sched:     sched,
		durations: durations,
		log:       logger.With().Str("component", "activity").Logger(),
		flags: map[Kind]*flag{
			KindUploading:       {},
			KindQualityUpgraded: {},
			KindRemoving:        {},
		},
		timers: make(map[timing.Timer]struct{}),
	}
}

// Trigger raises kind, bumps its counter and schedules an independent clear
func (n *Notifier) Trigger(kind Kind) error {
	f, ok := n.flags[kind]
	if !ok {
		return fmt.Errorf("unknown activity kind: %s", kind)
	}
	if n.closed {
		return nil
	}

	f.count++
	f.pending++

	var t timing.Timer
	t = n.sched.AfterFunc(n.durations.forKind(kind), func() {
		delete(n.timers, t)
		if f.pending > 0 {
			f.pending--
		}
	})
	n.timers[t] = struct{}{}

	n.log.Debug().Str("kind", string(kind)).Uint64("count", f.count).Msg("activity raised")
	return nil
}

// Snapshot returns flags and counters
func (n *Notifier) Snapshot() Snapshot {
	up := n.flags[KindUploading]
	upgraded := n.flags[KindQualityUpgraded]
	removing := n.flags[KindRemoving]

	return Snapshot{
		Uploading:          up.pending > 0,
		QualityUpgraded:    upgraded.pending > 0,
		Removing:           removing.pending > 0,
		NewMediaCount:      up.count,
		UpgradedMediaCount: upgraded.count,
		RemovedMediaCount:  removing.count,
	}
}

// Close cancels every pending clear. Flags are lowered; counters are kept.
func (n *Notifier) Close() {
	n.closed = true
	for t := range n.timers {
		t.Stop()
	}
	n.timers = make(map[timing.Timer]struct{})
	for _, f := range n.flags {
		f.pending = 0
	}
}
