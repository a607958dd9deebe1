package connectivity

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober is the signal source for a server process: it pings the remote
// backend on an interval and drives the monitor's transitions.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewProber(pinger Pinger, monitor *Monitor, interval, timeout time.Duration, log logrus.FieldLogger) *Prober {
	return &Prober{
		pinger:   pinger,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		log:      log.WithField("module", "prober"),
	}
}

// Probe pings once and reports the observed state.
// A ping cut short by ctx itself is not evidence of an outage.
func (p *Prober) Probe(ctx context.Context) State {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pingCtx)
	if ctx.Err() != nil {
		return p.monitor.State()
	}
	if err != nil {
		p.log.WithError(err).Debug("remote ping failed")
		p.monitor.NetworkLost()
		return Offline
	}
	p.monitor.NetworkAvailable()
	return Online
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// InitialState pings once without a monitor, for choosing the state a
// Monitor starts in.
func InitialState(ctx context.Context, pinger Pinger, timeout time.Duration) State {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		return Offline
	}
	return Online
}
