package recorder

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]RunRecord
	cycles    map[string][]CycleRecord
	commands  map[string][]CommandRecord
	rewards   map[string][]RewardRecord
	baselines map[string]map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]RunRecord)
	s.cycles = make(map[string][]CycleRecord)
	s.commands = make(map[string][]CommandRecord)
	s.rewards = make(map[string][]RewardRecord)
	s.baselines = make(map[string]map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

func (s *MemoryStore) AppendCycle(_ context.Context, runID string, cycle CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles[runID] = append(s.cycles[runID], cycle)
	return nil
}

func (s *MemoryStore) GetCycles(_ context.Context, runID string) ([]CycleRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cycles, ok := s.cycles[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]CycleRecord, len(cycles))
	copy(copied, cycles)
	return copied, true, nil
}

func (s *MemoryStore) AppendCommands(_ context.Context, runID string, record CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands[runID] = append(s.commands[runID], record)
	return nil
}

func (s *MemoryStore) GetCommands(_ context.Context, runID string) ([]CommandRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.commands[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]CommandRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func (s *MemoryStore) AppendReward(_ context.Context, runID string, reward RewardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rewards[runID] = append(s.rewards[runID], reward)
	return nil
}

func (s *MemoryStore) GetRewards(_ context.Context, runID string) ([]RewardRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rewards, ok := s.rewards[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]RewardRecord, len(rewards))
	copy(copied, rewards)
	return copied, true, nil
}

func (s *MemoryStore) SaveBaselines(_ context.Context, runID string, baselines map[string][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string][]float64, len(baselines))
	for id, values := range baselines {
		copied[id] = append([]float64(nil), values...)
	}
	s.baselines[runID] = copied
	return nil
}

func (s *MemoryStore) GetBaselines(_ context.Context, runID string) (map[string][]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	baselines, ok := s.baselines[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make(map[string][]float64, len(baselines))
	for id, values := range baselines {
		copied[id] = append([]float64(nil), values...)
	}
	return copied, true, nil
}
