package session

import (
	"context"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

// Store keeps finished sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

// MemoryStore keeps sessions for the life of the process. Nothing is evicted.
type MemoryStore struct {
	sessions cmap.ConcurrentMap[string, *Session]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: cmap.New[*Session]()}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, apperrors.NotFound("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return apperrors.BadRequest("session id is required")
	}
	m.sessions.Set(s.ID, s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if _, ok := m.sessions.Pop(id); !ok {
		return apperrors.NotFound("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// List returns every session, oldest first.
func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	out := make([]*Session, 0, m.sessions.Count())
	for item := range m.sessions.IterBuffered() {
		out = append(out, item.Val)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
