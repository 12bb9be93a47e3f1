package store

import (
	"sync"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

// Buffer holds turns for identities without storage consent. It never touches disk and
// keeps at most cap turns per owner, evicting the oldest first.
type Buffer struct {
	mu    sync.RWMutex
	cap   int
	turns map[string][]chat.Turn
}

// NewBuffer creates a buffer with the given per-owner capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10
	}
	return &Buffer{cap: capacity, turns: make(map[string][]chat.Turn)}
}

// Cap returns the per-owner capacity.
func (b *Buffer) Cap() int {
	return b.cap
}

// Append adds turns in order and returns the resulting length.
func (b *Buffer) Append(owner string, turns ...chat.Turn) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := append(b.turns[owner], turns...)
	if over := len(list) - b.cap; over > 0 {
		list = append([]chat.Turn(nil), list[over:]...)
	}
	b.turns[owner] = list
	return len(list)
}

// Snapshot returns a copy of the owner's turns, oldest first.
func (b *Buffer) Snapshot(owner string) chat.Transcript {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.turns[owner]
	if len(list) == 0 {
		return nil
	}
	out := make(chat.Transcript, len(list))
	copy(out, list)
	return out
}

// Len returns the number of buffered turns.
func (b *Buffer) Len(owner string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns[owner])
}

// Clear drops everything buffered for owner.
func (b *Buffer) Clear(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.turns, owner)
}
