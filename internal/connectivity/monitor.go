// Package connectivity tracks whether the remote backend is reachable and
// tells the sync engine when it comes back.
package connectivity

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

const (
	BannerReconnected = "Back online - Syncing..."
	BannerOffline     = "You are offline - Changes will sync when connected"
)

// Banner is the status notice shown to the operator. A zero Banner means
// nothing is shown.
type Banner struct {
	Message    string `json:"message,omitempty"`
	Persistent bool   `json:"persistent"`
}

func (b Banner) Visible() bool { return b.Message != "" }

// ChangeFunc is called after every state transition.
type ChangeFunc func(from, to State)

type Monitor struct {
	mu             sync.Mutex
	state          State
	banner         Banner
	bannerGen      uint64
	bannerDuration time.Duration
	listeners      []ChangeFunc
	reconnected    chan struct{}
	log            logrus.FieldLogger
}

// NewMonitor starts in initial, which should come from a startup probe.
func NewMonitor(initial State, bannerDuration time.Duration, log logrus.FieldLogger) *Monitor {
	m := &Monitor{
		state:          initial,
		bannerDuration: bannerDuration,
		reconnected:    make(chan struct{}, 1),
		log:            log.WithField("module", "connectivity"),
	}
	if initial == Offline {
		m.banner = Banner{Message: BannerOffline, Persistent: true}
	}
	return m
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) IsOnline() bool {
	return m.State() == Online
}

func (m *Monitor) Banner() Banner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banner
}

// Reconnected fires once per Offline to Online transition. Signals that
// are not consumed in time coalesce into one.
func (m *Monitor) Reconnected() <-chan struct{} {
	return m.reconnected
}

func (m *Monitor) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) NetworkAvailable() {
	if !m.transition(Online, Banner{Message: BannerReconnected}) {
		return
	}
	select {
	case m.reconnected <- struct{}{}:
	default:
	}
}

func (m *Monitor) NetworkLost() {
	m.transition(Offline, Banner{Message: BannerOffline, Persistent: true})
}

func (m *Monitor) transition(to State, banner Banner) bool {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.banner = banner
	m.bannerGen++
	gen := m.bannerGen
	if !banner.Persistent {
		time.AfterFunc(m.bannerDuration, func() { m.hideBanner(gen) })
	}
	listeners := make([]ChangeFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Info("connectivity changed")
	for _, fn := range listeners {
		fn(from, to)
	}
	return true
}

// hideBanner clears a transient banner unless a newer one replaced it.
func (m *Monitor) hideBanner(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bannerGen == gen {
		m.banner = Banner{}
	}
}
