package keystore

import (
	"context"
	"sort"
	"sync"
)

type memRecord struct {
	data      []byte
	biometric bool
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]memRecord // key -> tag -> record
	gate    Gate
}

// NewMemoryStore returns an empty store guarded by gate (AllowAll if nil).
func NewMemoryStore(gate Gate) *MemoryStore {
	if gate == nil {
		gate = AllowAll
	}
	return &MemoryStore{records: make(map[string]map[string]memRecord), gate: gate}
}

func (s *MemoryStore) Save(ctx context.Context, data []byte, q Query) error {
	if q.Tag == "" {
		return ErrEmptyTag
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, ok := s.records[q.Key]
	if !ok {
		tags = make(map[string]memRecord)
		s.records[q.Key] = tags
	}
	tags[q.Tag] = memRecord{data: append([]byte(nil), data...), biometric: q.RequiresBiometric}
	return nil
}

func (s *MemoryStore) LoadFirst(ctx context.Context, q Query) ([]byte, bool, error) {
	all, err := s.LoadAll(ctx, q)
	if err != nil || len(all) == 0 {
		return nil, false, err
	}
	return all[0], true, nil
}

func (s *MemoryStore) LoadAll(ctx context.Context, q Query) ([][]byte, error) {
	matched := s.match(q)

	for _, r := range matched {
		if r.biometric {
			if err := verify(ctx, s.gate, q); err != nil {
				return nil, err
			}
			break
		}
	}

	out := make([][]byte, 0, len(matched))
	for _, r := range matched {
		out = append(out, append([]byte(nil), r.data...))
	}
	return out, nil
}

func (s *MemoryStore) LoadMeta(ctx context.Context, q Query) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Meta
	for _, tag := range s.sortedTags(q) {
		out = append(out, Meta{Key: q.Key, Tag: tag})
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, q Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Tag == "" {
		delete(s.records, q.Key)
		return nil
	}
	delete(s.records[q.Key], q.Tag)
	return nil
}

func (s *MemoryStore) match(q Query) []memRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []memRecord
	for _, tag := range s.sortedTags(q) {
		out = append(out, s.records[q.Key][tag])
	}
	return out
}

// sortedTags must be called with mu held.
func (s *MemoryStore) sortedTags(q Query) []string {
	tags := s.records[q.Key]
	if q.Tag != "" {
		if _, ok := tags[q.Tag]; ok {
			return []string{q.Tag}
		}
		return nil
	}
	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
