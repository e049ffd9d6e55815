// Package errtrack keeps a bounded in-memory record of recent engine errors
// so the status API can surface what went wrong without scraping logs.
package errtrack

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of errors retained when none is specified.
const DefaultCapacity = 100

// Entry is one recorded error.
type Entry struct {
	Time     time.Time `json:"time"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
}

// Tracker is a fixed-capacity ring of recent errors with per-category counts.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	entries  []Entry
	start    int
	count    int
	byCat    map[string]int
	capacity int
}

// New creates a Tracker retaining at most capacity entries.
// A capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		entries:  make([]Entry, capacity),
		byCat:    make(map[string]int),
		capacity: capacity,
	}
}

// Record stores an error under the given category. Nil errors are ignored.
func (t *Tracker) Record(category string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{Time: time.Now(), Category: category, Message: err.Error()}
	idx := (t.start + t.count) % t.capacity
	t.entries[idx] = entry
	if t.count < t.capacity {
		t.count++
	} else {
		t.start = (t.start + 1) % t.capacity
	}
	t.byCat[category]++
}

// Recent returns up to n most recent errors, newest first.
// n <= 0 returns all retained entries.
func (t *Tracker) Recent(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.start + t.count - 1 - i) % t.capacity
		out = append(out, t.entries[idx])
	}
	return out
}

// Counts returns a copy of the per-category error counts.
func (t *Tracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int, len(t.byCat))
	for k, v := range t.byCat {
		out[k] = v
	}
	return out
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}
