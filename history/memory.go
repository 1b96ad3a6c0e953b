package history

import (
	"fmt"
	"sync"

	"github.com/nomis52/nodeflow/orchestrator"
)

// DefaultMaxRuns is the number of runs a store keeps when no limit is given.
const DefaultMaxRuns = 50

// MemoryStore keeps run history in memory only.
type MemoryStore struct {
	maxCount int

	mu   sync.RWMutex
	runs []Run // most recent first
}

// NewMemoryStore creates a MemoryStore keeping at most maxCount runs.
// A non-positive maxCount selects DefaultMaxRuns.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = DefaultMaxRuns
	}
	return &MemoryStore{maxCount: maxCount}
}

func (s *MemoryStore) Runs() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.runs)
}

func (s *MemoryStore) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.runs, id)
}

func (s *MemoryStore) Save(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]Run{run}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}

func (s *MemoryStore) LatestLedger() (string, *orchestrator.Ledger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestLedger(s.runs)
}

func summarize(runs []Run) []Summary {
	out := make([]Summary, len(runs))
	for i, r := range runs {
		out[i] = r.Summary()
	}
	return out
}

func find(runs []Run, id string) (Run, error) {
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}
