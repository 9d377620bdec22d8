package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryJournal is an in-process Journal used when no database path is
// configured
type MemoryJournal struct {
	mu      sync.RWMutex
	ready   bool
	records []*PullRecord
	states  map[string]*SyncState
	limit   int
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal keeps at most limit records; zero keeps everything
func NewMemoryJournal(limit int) *MemoryJournal {
	return &MemoryJournal{
		states: make(map[string]*SyncState),
		limit:  limit,
	}
}

func (m *MemoryJournal) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	return nil
}

func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	return nil
}

func (m *MemoryJournal) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func (m *MemoryJournal) RecordPull(ctx context.Context, record *PullRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrStorageNotReady
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	stored := *record
	stored.StartedAt = stored.StartedAt.UTC()
	stored.FinishedAt = stored.FinishedAt.UTC()
	m.records = append(m.records, &stored)
	if m.limit > 0 && len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}

	state, ok := m.states[record.ShareToken]
	if !ok {
		state = &SyncState{ShareToken: record.ShareToken}
		m.states[record.ShareToken] = state
	}
	state.LastPullAt = stored.FinishedAt
	state.PullsTotal++
	if record.Failed() {
		state.PullsFailed++
	} else {
		state.LastSuccessAt = stored.FinishedAt
		state.SessionID = record.SessionID
		state.ItemCount = record.ItemCount
	}
	return nil
}

func (m *MemoryJournal) RecentPulls(ctx context.Context, query PullQuery) ([]*PullRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, ErrStorageNotReady
	}

	var results []*PullRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if query.ShareToken != "" && r.ShareToken != query.ShareToken {
			continue
		}
		if query.Since != nil && r.FinishedAt.Before(*query.Since) {
			continue
		}
		if query.FailedOnly && !r.Failed() {
			continue
		}
		copied := *r
		results = append(results, &copied)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinishedAt.After(results[j].FinishedAt)
	})
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (m *MemoryJournal) GetSyncState(ctx context.Context, shareToken string) (*SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, ErrStorageNotReady
	}
	state, ok := m.states[shareToken]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}
