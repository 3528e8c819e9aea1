// Package bridge mirrors hardware adapter state into the pacing session and
// carries session writes back to the adapter.
//
// The Poller turns health responses into normalized updates and button
// edges. The Dispatcher executes hardware writes off the event loop. Neither
// touches the session; the event loop owns it.
package bridge

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Config controls polling cadence and connection hysteresis.
type Config struct {
	Interval      time.Duration // poll period while connected
	RetryInterval time.Duration // connect period while disconnected
	FailThreshold int           // consecutive failures before disconnecting
	Candidates    []string      // adapter base URLs tried on connect, in order
}

// DefaultConfig returns the standard polling configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      100 * time.Millisecond,
		RetryInterval: 3 * time.Second,
		FailThreshold: 3,
	}
}

// Report is the result of one poll, delivered to the event loop.
type Report struct {
	Update            pacing.ControlUpdate
	Edges             []pacing.Button
	Connected         bool
	ConnectionChanged bool
	Status            hardware.Status // raw passthrough for diagnostics
}

// discoverer is implemented by clients that can pick among several
// adapter URLs.
type discoverer interface {
	Discover(ctx context.Context, candidates []string) (string, error)
}

// Poller fetches hardware status, normalizes it and detects button edges.
// It is not safe for concurrent use; Run owns it.
type Poller struct {
	client hardware.Client
	cfg    Config

	connected bool
	failures  int
	lastMode  *int // nil until a mode has been seen on this connection
	buttons   hardware.Buttons
}

// NewPoller creates a Poller for client.
func NewPoller(client hardware.Client, cfg Config) *Poller {
	if cfg.FailThreshold < 1 {
		cfg.FailThreshold = 1
	}
	return &Poller{client: client, cfg: cfg}
}

// Connected reports the hysteresis-filtered connection state.
func (p *Poller) Connected() bool {
	return p.connected
}

// Connect attempts to reach the adapter, trying the configured candidates
// first when the client supports discovery. On success the poller is
// connected and the report carries every reported field, mode included.
func (p *Poller) Connect(ctx context.Context) (Report, error) {
	if d, ok := p.client.(discoverer); ok && len(p.cfg.Candidates) > 0 && !p.connected {
		if _, err := d.Discover(ctx, p.cfg.Candidates); err != nil {
			return p.fail(err), err
		}
	}
	return p.Poll(ctx)
}

// Poll fetches the current hardware status once.
func (p *Poller) Poll(ctx context.Context) (Report, error) {
	st, err := p.client.Health(ctx)
	if err != nil {
		return p.fail(err), err
	}

	rep := Report{Connected: true, Status: st}
	p.failures = 0
	if !p.connected {
		p.connected = true
		p.lastMode = nil
		p.buttons = hardware.Buttons{}
		rep.ConnectionChanged = true
		log.Printf("bridge: hardware connected")
	}
	rep.Update = p.update(st)
	rep.Edges = p.edges(st)
	return rep, nil
}

func (p *Poller) fail(err error) Report {
	p.failures++
	if p.failures == 1 {
		log.Printf("bridge: hardware unreachable: %v", err)
	}
	if p.connected && p.failures >= p.cfg.FailThreshold {
		p.connected = false
		log.Printf("bridge: hardware disconnected after %d failed polls", p.failures)
		return Report{Connected: false, ConnectionChanged: true}
	}
	return Report{Connected: p.connected}
}

// update copies every reported value. The machine filters them against
// the session, so a value it suppresses is offered again on the next poll.
// Mode is reported only when it changes: a hardware mode change is an
// authoritative event, not a level.
func (p *Poller) update(st hardware.Status) pacing.ControlUpdate {
	u := pacing.ControlUpdate{
		Rate:         copyFloat(st.Rate),
		AOutput:      copyFloat(st.AOutput),
		VOutput:      copyFloat(st.VOutput),
		ASensitivity: copyFloat(st.ASensitivity),
		VSensitivity: copyFloat(st.VSensitivity),
	}
	if st.Locked != nil {
		v := *st.Locked
		u.Locked = &v
	}
	if st.Mode != nil && (p.lastMode == nil || *p.lastMode != *st.Mode) {
		v := *st.Mode
		p.lastMode = &v
		m := pacing.Mode(v)
		u.Mode = &m
	}
	return u
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// edges reports buttons whose press flag went from false to true since the
// previous poll. A flag held true across polls fires once.
func (p *Poller) edges(st hardware.Status) []pacing.Button {
	var cur hardware.Buttons
	if st.Buttons != nil {
		cur = *st.Buttons
	}
	var out []pacing.Button
	for _, b := range hardware.AllButtons {
		if cur.Pressed(b) && !p.buttons.Pressed(b) {
			out = append(out, b)
		}
	}
	p.buttons = cur
	return out
}

// Run polls until ctx is cancelled, sending successful polls and
// connection changes to out.
func (p *Poller) Run(ctx context.Context, out chan<- Report) error {
	for {
		var rep Report
		var err error
		if p.connected {
			rep, err = p.Poll(ctx)
		} else {
			rep, err = p.Connect(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil || rep.ConnectionChanged {
			select {
			case out <- rep:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		wait := p.cfg.Interval
		if !p.connected {
			wait = p.cfg.RetryInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
