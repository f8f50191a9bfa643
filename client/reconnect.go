package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Link is one established transport connection.
type Link interface {
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	Err() error
	// Transport describes the connection for display.
	Transport() string
	Close() error
}

// Dialer establishes a Link. ctx bounds the establishment only, not the life of the link.
type Dialer func(ctx context.Context) (Link, error)

type ReconnectConfig struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{MaxAttempts: 5, Delay: time.Second, AttemptTimeout: 20 * time.Second}
}

type Status struct {
	State     ConnState
	Transport string
	Attempts  int
	LastError error
}

// ReconnectSupervisor keeps a Link alive: while disconnected it dials up to MaxAttempts times,
// then waits for Reconnect. It never gives up on its own.
type ReconnectSupervisor struct {
	mu        sync.Mutex
	log       *slog.Logger
	dial      Dialer
	config    ReconnectConfig
	status    Status
	link      Link
	onConnect []func(ctx context.Context, link Link)
	changes   chan Status
	trigger   chan struct{}
}

func NewReconnectSupervisor(log *slog.Logger, dial Dialer, config ReconnectConfig) *ReconnectSupervisor {
	defaults := DefaultReconnectConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Delay <= 0 {
		config.Delay = defaults.Delay
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	return &ReconnectSupervisor{
		log:     log,
		dial:    dial,
		config:  config,
		changes: make(chan Status, 16),
		trigger: make(chan struct{}, 1),
	}
}

// OnConnect registers a hook run after every successful connection, before the state is published.
func (s *ReconnectSupervisor) OnConnect(fn func(ctx context.Context, link Link)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

func (s *ReconnectSupervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Changes publishes every status transition. Slow readers miss intermediate ones.
func (s *ReconnectSupervisor) Changes() <-chan Status {
	return s.changes
}

// Link returns the current connection, if any.
func (s *ReconnectSupervisor) Link() (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link, s.link != nil
}

// Reconnect restarts the attempts after the budget was exhausted, or recycles a live connection.
func (s *ReconnectSupervisor) Reconnect() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives the state machine until ctx is canceled.
func (s *ReconnectSupervisor) Run(ctx context.Context) error {
	for {
		link := s.connect(ctx)
		if ctx.Err() != nil {
			if link != nil {
				_ = link.Close()
			}
			s.setDisconnected(nil)
			return nil
		}
		if link == nil {
			s.log.Warn("Reconnection budget exhausted, waiting for manual reconnect",
				"attempts", s.config.MaxAttempts)
			select {
			case <-ctx.Done():
				return nil
			case <-s.trigger:
				continue
			}
		}

		s.setConnected(ctx, link)

		select {
		case <-ctx.Done():
			_ = link.Close()
			s.setDisconnected(nil)
			return nil
		case <-link.Done():
			s.log.Info("Connection lost", "error", link.Err())
			s.setDisconnected(link.Err())
		case <-s.trigger:
			_ = link.Close()
			s.setDisconnected(nil)
		}
	}
}

// connect returns nil when every attempt failed or ctx is done.
func (s *ReconnectSupervisor) connect(ctx context.Context) Link {
	// A trigger sent while attempts are still running is already honored
	select {
	case <-s.trigger:
	default:
	}

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		s.setAttempt(attempt)
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
		link, err := s.dial(attemptCtx)
		cancel()
		if err == nil {
			return link
		}
		if ctx.Err() != nil {
			return nil
		}
		s.log.Debug("Connection attempt failed", "attempt", attempt, "error", err)
		s.setError(err)

		if attempt == s.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.config.Delay):
		}
	}
	return nil
}

func (s *ReconnectSupervisor) setAttempt(attempt int) {
	s.update(func(st *Status) { st.Attempts = attempt })
}

func (s *ReconnectSupervisor) setError(err error) {
	s.update(func(st *Status) { st.LastError = err })
}

func (s *ReconnectSupervisor) setConnected(ctx context.Context, link Link) {
	s.mu.Lock()
	s.link = link
	hooks := append([]func(context.Context, Link){}, s.onConnect...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, link)
	}
	s.update(func(st *Status) {
		*st = Status{State: Connected, Transport: link.Transport()}
	})
	s.log.Info("Connected", "transport", link.Transport())
}

func (s *ReconnectSupervisor) setDisconnected(err error) {
	s.mu.Lock()
	s.link = nil
	s.mu.Unlock()
	s.update(func(st *Status) {
		*st = Status{State: Disconnected, LastError: err}
	})
}

func (s *ReconnectSupervisor) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	snapshot := s.status
	s.mu.Unlock()

	select {
	case s.changes <- snapshot:
	default:
	}
}
