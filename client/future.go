package client

import (
	"dm-relay/domain"
	"sync"
)

// AckFuture is the single-assignment result of one send.
// The first Resolve wins; later ones are ignored.
type AckFuture struct {
	mu       sync.Mutex
	done     chan struct{}
	ack      domain.Ack
	resolved bool
}

func NewAckFuture() *AckFuture {
	return &AckFuture{done: make(chan struct{})}
}

func (f *AckFuture) Resolve(ack domain.Ack) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.ack = ack
	f.resolved = true
	close(f.done)
	return true
}

// Done is closed once the ack is known.
func (f *AckFuture) Done() <-chan struct{} {
	return f.done
}

// Ack returns the resolved ack. Only meaningful after Done is closed.
func (f *AckFuture) Ack() domain.Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ack
}
