// Package sessions manages live conversation sessions and their
// persisted snapshots.
package sessions

import (
	"context"
	"sync"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/pkg/schema"
)

// SnapshotStore persists session snapshots so transcripts survive a
// process restart. Live protocol state (pending suspensions, run
// goroutines) is deliberately not part of a snapshot; a restored session
// always starts a fresh generation.
type SnapshotStore interface {
	Save(ctx context.Context, snap bridge.Snapshot) error
	Load(ctx context.Context, sessionID string) (*bridge.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]bridge.Snapshot, error)
}

// MemorySnapshotStore is an in-memory SnapshotStore for tests and
// single-process deployments.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]bridge.Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]bridge.Snapshot)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap bridge.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = snap
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, sessionID string) (*bridge.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "snapshot for session %q not found", sessionID)
	}
	return &snap, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, sessionID)
	return nil
}

func (s *MemorySnapshotStore) List(_ context.Context) ([]bridge.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bridge.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	return out, nil
}
