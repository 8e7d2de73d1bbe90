package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore keeps snapshots so a caller's *Session never aliases stored state.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]Snapshot
	now      func() time.Time
	saveErr  error
	queryErr error
	queries  int
}

func newMemStore(now func() time.Time, sessions ...*Session) *memStore {
	m := &memStore{sessions: make(map[string]Snapshot), now: now}
	for _, s := range sessions {
		m.sessions[s.ID] = s.Snapshot()
	}
	return m
}

func (m *memStore) restore(snap Snapshot) *Session {
	return Restore(snap.Info, snap.Status, snap.OpenedAt, snap.ClosedAt)
}

func (m *memStore) ListUnclosed(ctx context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, snap := range m.sessions {
		if snap.Status != StatusClosed {
			out = append(out, m.restore(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.restore(snap), nil
}

func (m *memStore) SaveStatus(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[s.ID] = s.Snapshot()
	return nil
}

func (m *memStore) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Status
}

func (m *memStore) HasOtherAutoStartSession(ctx context.Context, excludingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return false, m.queryErr
	}
	for id, snap := range m.sessions {
		if id != excludingID && snap.AutoStart && snap.Status == StatusPending && m.now().Before(snap.End) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) IsSessionOpen(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	for _, snap := range m.sessions {
		if snap.Status == StatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasOtherAutoStopSession(ctx context.Context, excludingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return false, m.queryErr
	}
	for id, snap := range m.sessions {
		if id != excludingID && snap.AutoStop && snap.Status == StatusOpen {
			return true, nil
		}
	}
	return false, nil
}

type recordingHooks struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (h *recordingHooks) SessionOpened(ctx context.Context, s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, s.ID)
	return nil
}

func (h *recordingHooks) SessionClosed(ctx context.Context, s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, s.ID)
	return nil
}
