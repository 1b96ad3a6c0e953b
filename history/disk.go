package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nomis52/nodeflow/orchestrator"
)

// DiskStore persists each run as a JSON file in a directory. Only the most
// recent maxCount runs are kept; older files are removed on Save.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu    sync.RWMutex
	runs  []Run    // most recent first
	files []string // file name for each entry of runs
}

// NewDiskStore creates a DiskStore in dir, creating the directory if needed,
// and loads existing runs from it.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) Runs() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.runs)
}

func (s *DiskStore) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.runs, id)
}

func (s *DiskStore) LatestLedger() (string, *orchestrator.Ledger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestLedger(s.runs)
}

// Save writes run to disk and trims the history to maxCount runs.
func (s *DiskStore) Save(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	name := fileName(run)
	if err := writeFile(filepath.Join(s.dir, name), data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]Run{run}, s.runs...)
	s.files = append([]string{name}, s.files...)
	for len(s.runs) > s.maxCount {
		last := len(s.runs) - 1
		if err := os.Remove(filepath.Join(s.dir, s.files[last])); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old run", "file", s.files[last], "error", err)
		}
		s.runs = s.runs[:last]
		s.files = s.files[:last]
	}
	return nil
}

// Reload re-reads the history directory.
func (s *DiskStore) Reload() error {
	return s.load()
}

func (s *DiskStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read history directory: %w", err)
	}

	type loaded struct {
		run  Run
		file string
	}
	var all []loaded
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("failed to read run file", "file", e.Name(), "error", err)
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", e.Name(), "error", err)
			continue
		}
		all = append(all, loaded{run: run, file: e.Name()})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].run.StartedAt.After(all[j].run.StartedAt)
	})
	if len(all) > s.maxCount {
		all = all[:s.maxCount]
	}

	runs := make([]Run, len(all))
	files := make([]string, len(all))
	for i, l := range all {
		runs[i] = l.run
		files[i] = l.file
	}

	s.mu.Lock()
	s.runs = runs
	s.files = files
	s.mu.Unlock()

	s.logger.Info("loaded run history from disk", "count", len(runs), "dir", s.dir)
	return nil
}

func fileName(run Run) string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return run.StartedAt.UTC().Format("2006-01-02T15-04-05") + "_" + id + ".json"
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".run-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	return nil
}
