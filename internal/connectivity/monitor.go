// Package connectivity tracks the platform-reported online/offline
// signal and notifies subscribers on transitions.
package connectivity

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Monitor holds the current connectivity state. It trusts whatever the
// platform reports; there is no active reachability probing, so a
// captive portal can make it claim online while requests fail.
type Monitor struct {
	log *logrus.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewMonitor creates a Monitor seeded with the platform's current
// connectivity signal.
func NewMonitor(initialOnline bool, log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		log:    log,
		online: initialOnline,
		subs:   make(map[int]func(bool)),
	}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline ingests a platform connectivity event. Subscribers are
// notified only on actual transitions; repeated reports of the same
// state are ignored.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]func(bool), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	if online {
		m.log.Info("connectivity restored")
	} else {
		m.log.Info("connectivity lost")
	}

	for _, h := range handlers {
		h(online)
	}
}

// Subscribe registers fn for transition notifications and returns an
// unsubscribe function. Callers must unsubscribe on teardown so no
// listener outlives its owner.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
