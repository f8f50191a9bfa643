// Package dedup keeps a short memory of persisted sends so that a retransmit
// of the same (sender, receiver, content) collapses into the original message.
package dedup

import (
	"context"
	"dm-relay/domain"
	"sync"
	"time"
)

// DefaultWindow is how long an identical send is considered a retransmit.
const DefaultWindow = 5 * time.Second

type entry struct {
	message     domain.Message
	firstSeenAt time.Time
}

// Window is the in-process implementation. Expiry is lazy on Lookup;
// Sweep only reclaims memory.
type Window struct {
	mu      sync.Mutex
	length  time.Duration
	entries map[domain.DedupKey]entry
}

func NewWindow(length time.Duration) *Window {
	if length <= 0 {
		length = DefaultWindow
	}
	return &Window{length: length, entries: make(map[domain.DedupKey]entry)}
}

func (w *Window) Length() time.Duration {
	return w.length
}

// Record inserts or refreshes the entry for key.
func (w *Window) Record(_ context.Context, key domain.DedupKey, msg domain.Message, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[key] = entry{message: msg, firstSeenAt: now}
	return nil
}

// Lookup returns the stored message if it was first seen less than the window ago.
func (w *Window) Lookup(_ context.Context, key domain.DedupKey, now time.Time) (domain.Message, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		return domain.Message{}, false, nil
	}
	if now.Sub(e.firstSeenAt) >= w.length {
		delete(w.entries, key)
		return domain.Message{}, false, nil
	}
	return e.message, true, nil
}

// Sweep drops every expired entry and returns how many were removed.
func (w *Window) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for key, e := range w.entries {
		if now.Sub(e.firstSeenAt) >= w.length {
			delete(w.entries, key)
			removed++
		}
	}
	return removed
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
