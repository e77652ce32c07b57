// Package lease provides an on-demand exclusive-resource manager.
//
// It is the generic pattern behind camera handle sharing: resources are
// expensive to open and exclusive at the OS level, consumers come and
// go in bursts, and "no current consumer" must not mean "close
// immediately". A background sweeper closes resources once they have
// had zero registered clients for longer than the idle threshold.
package lease

import (
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resource is an exclusive handle managed by the lease manager.
type Resource interface {
	Close() error
}

// OpenFunc opens the resource for a key. Called at most once per key
// while the previous handle (if any) remains open.
type OpenFunc func(key string) (Resource, error)

// lease tracks one keyed resource. Its mutex serializes opens and all
// use of the resource: concurrent consumers of one key must not
// interleave raw capture calls.
type lease struct {
	mu         sync.Mutex
	res        Resource
	clients    int
	lastAccess time.Time
}

// Manager owns every lease and the idle sweeper.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	leases map[string]*lease

	open          OpenFunc
	idleTimeout   time.Duration
	sweepInterval time.Duration
	logger        Logger

	done        chan struct{}
	sweeperDone chan struct{}
	closeOnce   sync.Once
}

// NewManager creates a Manager and starts its sweeper.
func NewManager(open OpenFunc, idleTimeout, sweepInterval time.Duration) *Manager {
	m := &Manager{
		leases:        make(map[string]*lease),
		open:          open,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		logger:        noopLogger{},
		done:          make(chan struct{}),
		sweeperDone:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (m *Manager) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.logger = l
}

func (m *Manager) get(key string) *lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[key]
	if !ok {
		l = &lease{}
		m.leases[key] = l
	}
	return l
}

// Do runs fn with the resource for key, opening it on first use. The
// per-key lock is held for the duration of fn, so raw resource calls
// from concurrent consumers never interleave. The open happens at most
// once even under racing acquires for the same key.
func (m *Manager) Do(key string, fn func(Resource) error) error {
	l := m.get(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.res == nil {
		res, err := m.open(key)
		if err != nil {
			return fmt.Errorf("lease: open %s: %w", key, err)
		}
		m.logger.Info("resource opened", "key", key)
		l.res = res
	}
	l.lastAccess = time.Now()

	return fn(l.res)
}

// Invalidate closes and forgets the resource for key so the next Do
// reopens it. Used after an unrecoverable read failure.
func (m *Manager) Invalidate(key string) {
	l := m.get(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.res != nil {
		if err := l.res.Close(); err != nil {
			m.logger.Warn("resource close failed", "key", key, "error", err)
		}
		l.res = nil
		m.logger.Info("resource invalidated", "key", key)
	}
}

// RegisterClient records an active consumer for key. The resource is
// not closed by the sweeper while any client is registered.
func (m *Manager) RegisterClient(key string) {
	l := m.get(key)
	l.mu.Lock()
	l.clients++
	l.lastAccess = time.Now()
	l.mu.Unlock()
}

// UnregisterClient removes an active consumer for key. The idle clock
// starts when the last client leaves.
func (m *Manager) UnregisterClient(key string) {
	l := m.get(key)
	l.mu.Lock()
	if l.clients > 0 {
		l.clients--
	}
	l.lastAccess = time.Now()
	l.mu.Unlock()
}

// Clients returns the active consumer count for key.
func (m *Manager) Clients(key string) int {
	l := m.get(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clients
}

func (m *Manager) sweep() {
	defer close(m.sweeperDone)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	keyed := make(map[string]*lease, len(m.leases))
	for k, l := range m.leases {
		keyed[k] = l
	}
	m.mu.Unlock()

	for key, l := range keyed {
		l.mu.Lock()
		if l.res != nil && l.clients == 0 && time.Since(l.lastAccess) > m.idleTimeout {
			if err := l.res.Close(); err != nil {
				m.logger.Warn("resource close failed", "key", key, "error", err)
			}
			l.res = nil
			m.logger.Info("idle resource closed", "key", key)
		}
		l.mu.Unlock()
	}
}

// Shutdown stops the sweeper and force-closes every open resource
// regardless of client count. Idempotent.
func (m *Manager) Shutdown() {
	m.closeOnce.Do(func() {
		close(m.done)
		<-m.sweeperDone

		m.mu.Lock()
		defer m.mu.Unlock()
		for key, l := range m.leases {
			l.mu.Lock()
			if l.res != nil {
				if err := l.res.Close(); err != nil {
					m.logger.Warn("resource close failed", "key", key, "error", err)
				}
				l.res = nil
			}
			l.mu.Unlock()
		}
	})
}
