package status

import "sync"

// Board stores the latest status message of each node, keyed by node name.
type Board struct {
	mu       sync.RWMutex
	messages map[string]string
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{messages: make(map[string]string)}
}

// Set updates the message for node.
func (b *Board) Set(node, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[node] = message
}

// Get returns the message for node, or "" if it never reported one.
func (b *Board) Get(node string) string {
	if b == nil {
		return ""
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.messages[node]
}

// All returns a copy of all messages.
func (b *Board) All() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]string, len(b.messages))
	for k, v := range b.messages {
		out[k] = v
	}
	return out
}
