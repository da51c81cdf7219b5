package storage

import (
	"context"
	"sync"

	"github.com/Noofbiz/locaz/evaluate"
	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	partitions  map[string]split.Partition
	histories   map[string]simple.History
	summaries   map[string][]evaluate.PositionSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.partitions = make(map[string]split.Partition)
	s.histories = make(map[string]simple.History)
	s.summaries = make(map[string][]evaluate.PositionSummary)
	return nil
}

func (s *MemoryStore) SavePartition(_ context.Context, run string, p split.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.partitions[run] = copyPartition(p)
	return nil
}

func (s *MemoryStore) GetPartition(_ context.Context, run string) (split.Partition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return split.Partition{}, false, ErrNotInitialized
	}
	p, ok := s.partitions[run]
	if !ok {
		return split.Partition{}, false, nil
	}
	return copyPartition(p), true, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, run string, h simple.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.histories[run] = append(simple.History{}, h...)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, run string) (simple.History, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	h, ok := s.histories[run]
	if !ok {
		return nil, false, nil
	}
	return append(simple.History{}, h...), true, nil
}

func (s *MemoryStore) SaveSummaries(_ context.Context, run string, sum []evaluate.PositionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.summaries[run] = append([]evaluate.PositionSummary{}, sum...)
	return nil
}

func (s *MemoryStore) GetSummaries(_ context.Context, run string) ([]evaluate.PositionSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	sum, ok := s.summaries[run]
	if !ok {
		return nil, false, nil
	}
	return append([]evaluate.PositionSummary{}, sum...), true, nil
}
