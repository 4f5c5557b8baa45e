package state

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps presets in process, grouped by owner. Useful for tests
// and short-lived sessions.
type MemoryStore[T any] struct {
	mu     sync.RWMutex
	owners map[string]map[string]memoryRecord[T]
}

type memoryRecord[T any] struct {
	snapshot T
	meta     Meta
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{owners: map[string]map[string]memoryRecord[T]{}}
}

func (s *MemoryStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	ref, err := ref.normalized()
	if err != nil {
		return zero, Meta{}, false, err
	}
	s.mu.RLock()
	record, ok := s.owners[ref.Owner][ref.Name]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.snapshot, cloneMeta(record.meta), true, nil
}

func (s *MemoryStore[T]) Save(_ context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	ref, err := ref.normalized()
	if err != nil {
		return Meta{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.owners[ref.Owner]
	if !ok {
		names = map[string]memoryRecord[T]{}
		s.owners[ref.Owner] = names
	}
	names[ref.Name] = memoryRecord[T]{snapshot: snapshot, meta: cloneMeta(meta)}
	return cloneMeta(meta), nil
}

func (s *MemoryStore[T]) List(_ context.Context, owner string) ([]Ref, error) {
	key, err := Ref{Owner: owner, Name: "x"}.normalized()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]Ref, 0, len(s.owners[key.Owner]))
	for name := range s.owners[key.Owner] {
		refs = append(refs, Ref{Owner: key.Owner, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
