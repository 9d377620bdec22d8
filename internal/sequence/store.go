// Package sequence owns the ordered, deduplicated list of wall items and the
// playback cursor into it.
package sequence

import (
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/core"
)

// Offsets are the insertion distances used by the cursor-relative strategies
type Offsets struct {
	// AfterCurrent is the distance past the cursor for after_current
	AfterCurrent int `yaml:"after_current"`
	// SmartBase and SmartSpread place smart_priority items at
	// cursor + SmartBase + rand[0, SmartSpread)
	SmartBase   int `yaml:"smart_base"`
	SmartSpread int `yaml:"smart_spread"`
}

// DefaultOffsets returns +3 for after_current and +1..+5 for smart_priority
func DefaultOffsets() Offsets {
	return Offsets{AfterCurrent: 3, SmartBase: 1, SmartSpread: 5}
}

// Store is the Media Sequence Store. It is not safe for concurrent use; the
// engine only touches it from loop turns.
type Store struct {
	items   []core.MediaItem
	cursor  int
	offsets Offsets
	intn    func(n int) int
	log     zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithOffsets overrides the insertion offsets
func WithOffsets(o Offsets) Option {
	return func(s *Store) { s.offsets = o }
}

// WithRand overrides the random source used by smart_priority
func WithRand(intn func(n int) int) Option {
	return func(s *Store) { s.intn = intn }
}

// WithLogger sets the logger for missed updates
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.log = logger.With().Str("component", "sequence").Logger() }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		offsets: DefaultOffsets(),
		intn:    rand.Intn,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of items
func (s *Store) Len() int {
	return len(s.items)
}

// Cursor returns the current playback index
func (s *Store) Cursor() int {
	return s.cursor
}

// Current returns the item under the cursor
func (s *Store) Current() (core.MediaItem, bool) {
	if len(s.items) == 0 {
		return core.MediaItem{}, false
	}
	return s.items[s.cursor], true
}

// Items returns a copy of the items in display order
func (s *Store) Items() []core.MediaItem {
	out := make([]core.MediaItem, len(s.items))
	copy(out, s.items)
	return out
}

// Contains reports whether id is present
func (s *Store) Contains(id string) bool {
	return s.indexOf(id) >= 0
}

// Insert places item according to strategy and returns the new cursor. An
// item whose id is already present is updated in place instead and
// inserted is false.
func (s *Store) Insert(item core.MediaItem, strategy core.InsertionStrategy) (cursor int, inserted bool) {
	if i := s.indexOf(item.ID); i >= 0 {
		if item.ImageURL != "" {
			s.items[i].ImageURL = item.ImageURL
		}
		if item.UploaderName != "" {
			s.items[i].UploaderName = item.UploaderName
		}
		return s.cursor, false
	}

	item.IsNew = true
	index := s.insertionIndex(strategy)
	wasEmpty := len(s.items) == 0

	s.items = append(s.items, core.MediaItem{})
	copy(s.items[index+1:], s.items[index:])
	s.items[index] = item

	switch {
	case strategy == core.InsertImmediate:
		s.cursor = 0
	case !wasEmpty && index <= s.cursor:
		s.cursor++
	}
	s.clamp()
	return s.cursor, true
}

// insertionIndex computes a position within [0, len] for strategy
func (s *Store) insertionIndex(strategy core.InsertionStrategy) int {
	n := len(s.items)
	var index int

	switch strategy {
	case core.InsertImmediate:
		index = 0
	case core.InsertAfterCurrent:
		index = s.cursor + s.offsets.AfterCurrent
	case core.InsertSmartPriority:
		jitter := 0
		if s.offsets.SmartSpread > 0 {
			jitter = s.intn(s.offsets.SmartSpread)
		}
		index = s.cursor + s.offsets.SmartBase + jitter
	default:
		index = n
	}

	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}
	return index
}

// UpdateInPlace swaps the image URL of an existing item. It reports false
// and logs a missed update when id is absent.
func (s *Store) UpdateInPlace(id, imageURL string) bool {
	i := s.indexOf(id)
	if i < 0 {
		s.log.Debug().Str("media_id", id).Msg("missed in-place update, item not present")
		return false
	}
	s.items[i].ImageURL = imageURL
	return true
}

// Remove deletes the item with id and returns the new cursor. Removing an
// absent id changes nothing.
func (s *Store) Remove(id string) (cursor int, removed bool) {
	i := s.indexOf(id)
	if i < 0 {
		return s.cursor, false
	}

	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = core.MediaItem{}
	s.items = s.items[:len(s.items)-1]

	if i < s.cursor {
		s.cursor--
	}
	s.clamp()
	return s.cursor, true
}

// ReplaceAll swaps the whole sequence. Duplicate ids in items keep their
// first occurrence. The cursor keeps its absolute index when still in range.
func (s *Store) ReplaceAll(items []core.MediaItem) int {
	seen := make(map[string]struct{}, len(items))
	next := make([]core.MediaItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			s.log.Warn().Str("media_id", item.ID).Msg("dropping duplicate item from snapshot")
			continue
		}
		seen[item.ID] = struct{}{}
		next = append(next, item)
	}

	s.items = next
	if s.cursor >= len(s.items) {
		s.cursor = 0
	}
	s.clamp()
	return s.cursor
}

// ClearUploaderNames drops every uploader name and returns how many were set
func (s *Store) ClearUploaderNames() int {
	n := 0
	for i := range s.items {
		if s.items[i].UploaderName != "" {
			s.items[i].UploaderName = ""
			n++
		}
	}
	return n
}

// ClearNewFlag marks the item as no longer new
func (s *Store) ClearNewFlag(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.items[i].IsNew = false
	}
}

// Step moves the cursor by delta with wrap-around and returns it
func (s *Store) Step(delta int) int {
	n := len(s.items)
	if n == 0 {
		s.cursor = 0
		return 0
	}
	s.cursor = ((s.cursor+delta)%n + n) % n
	return s.cursor
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) clamp() {
	switch {
	case len(s.items) == 0:
		s.cursor = 0
	case s.cursor >= len(s.items):
		s.cursor = len(s.items) - 1
	case s.cursor < 0:
		s.cursor = 0
	}
}
