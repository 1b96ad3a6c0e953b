package orchestrator

import (
	"encoding/json"
	"sort"
	"sync"
)

// NodeID identifies a node within the checkpoint ledger.
type NodeID string

// Ledger is the checkpoint ledger: the set of node identities that executed
// successfully. It only grows and is safe for concurrent use.
type Ledger struct {
	mu  sync.RWMutex
	ids map[NodeID]struct{}
}

// NewLedger returns a ledger seeded with ids.
func NewLedger(ids ...NodeID) *Ledger {
	l := &Ledger{ids: make(map[NodeID]struct{}, len(ids))}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l
}

// Add records id. It reports whether id was newly added.
func (l *Ledger) Add(id NodeID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ids == nil {
		l.ids = make(map[NodeID]struct{})
	}
	if _, ok := l.ids[id]; ok {
		return false
	}
	l.ids[id] = struct{}{}
	return true
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(id NodeID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Len returns the number of recorded identities.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// IDs returns the recorded identities in sorted order.
func (l *Ledger) IDs() []NodeID {
	l.mu.RLock()
	ids := make([]NodeID, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns an independent copy of the ledger.
func (l *Ledger) Snapshot() *Ledger {
	return NewLedger(l.IDs()...)
}

// MarshalJSON encodes the ledger as a sorted array.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.IDs())
}

// UnmarshalJSON adds the identities from a JSON array. Existing entries are kept.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var ids []NodeID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		l.Add(id)
	}
	return nil
}
