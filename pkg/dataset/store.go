package dataset

import (
	"context"
	"errors"
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

var ErrDatasetNotFound = errors.New("dataset not found")

type Entry struct {
	ID         string
	FileName   string
	Table      *Table
	UploadedAt time.Time
}

// Store supplies loaded tables by dataset id.
type Store interface {
	Get(ctx context.Context, id string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Entry, error)
}

// MemoryStore keeps datasets for the lifetime of the process. Nothing is evicted.
type MemoryStore struct {
	entries cmap.ConcurrentMap[string, *Entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: cmap.New[*Entry]()}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	entry, ok := s.entries.Get(id)
	if !ok {
		return nil, apperrors.NotFound("dataset %s: %w", id, ErrDatasetNotFound)
	}
	return entry, nil
}

func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return apperrors.BadRequest("dataset entry requires an id")
	}
	s.entries.Set(entry.ID, entry)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if !s.entries.Has(id) {
		return apperrors.NotFound("dataset %s: %w", id, ErrDatasetNotFound)
	}
	s.entries.Remove(id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Entry, error) {
	entries := make([]*Entry, 0, s.entries.Count())
	for item := range s.entries.IterBuffered() {
		entries = append(entries, item.Val)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UploadedAt.Before(entries[j].UploadedAt)
	})
	return entries, nil
}
