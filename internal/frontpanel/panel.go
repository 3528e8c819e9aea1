// Package frontpanel models the physical pacemaker front panel served by
// the hardware adapter: one rotary encoder bound to the active control,
// four push buttons and the device lock.
//
// Panel is safe for concurrent use. Time is injected into Sample so the
// input decoding is deterministic under test.
package frontpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/gpio"
	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// ErrLocked is returned for writes while the device is locked.
var ErrLocked = errors.New("device locked")

// ErrInvalidMode is returned for mode indexes outside the mode list.
var ErrInvalidMode = errors.New("invalid mode")

// State is the device's own copy of the pacing parameters.
type State struct {
	Mode          pacing.Mode
	Rate          float64
	AOutput       float64
	VOutput       float64
	ASensitivity  float64
	VSensitivity  float64
	Locked        bool
	ActiveControl pacing.ActiveControl
}

// Counters are encoder diagnostics reported in the health response.
type Counters struct {
	Clockwise        int64 `json:"clockwise"`
	CounterClockwise int64 `json:"counter_clockwise"`
	Invalid          int64 `json:"invalid"`
	Ignored          int64 `json:"ignored"`
}

type diagnostics struct {
	Encoder       Counters             `json:"encoder"`
	ActiveControl pacing.ActiveControl `json:"active_control"`
}

// Panel is the front-panel device state.
type Panel struct {
	mu       sync.Mutex
	debounce time.Duration
	state    State
	quad     quadDecoder
	buttons  [4]debouncer
	pressed  [4]bool
	counters Counters
}

// New creates a Panel with the power-on parameters and no active control.
func New(debounce time.Duration) *Panel {
	s := pacing.DefaultSession()
	return &Panel{
		debounce: debounce,
		state: State{
			Mode:          s.Mode,
			Rate:          s.Rate,
			AOutput:       s.AOutput,
			VOutput:       s.VOutput,
			ASensitivity:  s.ASensitivity,
			VSensitivity:  s.VSensitivity,
			ActiveControl: pacing.ControlNone,
		},
	}
}

// State returns a copy of the device state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Sample feeds one reading of the panel lines. Encoder detents adjust the
// active control unless the device is locked; button presses latch until
// the next health report.
func (p *Panel) Sample(l gpio.Levels, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	detent, invalid := p.quad.feed(l.EncoderA, l.EncoderB)
	if invalid {
		p.counters.Invalid++
	}
	if detent != 0 {
		p.turn(detent)
	}

	held := [4]bool{l.Up, l.Down, l.Left, l.Emergency}
	for i := range p.buttons {
		if p.buttons[i].feed(held[i], now, p.debounce) {
			p.pressed[i] = true
		}
	}
}

func (p *Panel) turn(detent int) {
	dir := pacing.Up
	if detent > 0 {
		p.counters.Clockwise++
	} else {
		p.counters.CounterClockwise++
		dir = pacing.Down
	}

	f := pacing.Field(p.state.ActiveControl)
	r, ok := pacing.RangeFor(f)
	if !ok {
		p.counters.Ignored++
		return
	}
	c := pacing.Control{
		Field:    f,
		Range:    r,
		Value:    p.value(f),
		Inverted: f.IsSensitivity(),
		OnChange: func(v float64) error {
			p.set(f, v)
			return nil
		},
		IsLocked: func() bool { return p.state.Locked },
	}
	if err := c.Nudge(dir); err != nil {
		p.counters.Ignored++
	}
}

func (p *Panel) value(f pacing.Field) float64 {
	switch f {
	case pacing.FieldRate:
		return p.state.Rate
	case pacing.FieldAOutput:
		return p.state.AOutput
	case pacing.FieldVOutput:
		return p.state.VOutput
	case pacing.FieldASensitivity:
		return p.state.ASensitivity
	case pacing.FieldVSensitivity:
		return p.state.VSensitivity
	}
	return 0
}

func (p *Panel) set(f pacing.Field, v float64) {
	switch f {
	case pacing.FieldRate:
		p.state.Rate = v
	case pacing.FieldAOutput:
		p.state.AOutput = v
	case pacing.FieldVOutput:
		p.state.VOutput = v
	case pacing.FieldASensitivity:
		p.state.ASensitivity = v
	case pacing.FieldVSensitivity:
		p.state.VSensitivity = v
	}
}

func validControl(c pacing.ActiveControl) bool {
	switch c {
	case pacing.ControlNone, pacing.ControlRate, pacing.ControlAOutput, pacing.ControlVOutput,
		pacing.ControlASensitivity, pacing.ControlVSensitivity:
		return true
	}
	return false
}

// SetValue writes a field. A non-empty control also rebinds the encoder.
// While locked, writes are accepted only in DOO.
func (p *Panel) SetValue(f pacing.Field, v float64, control pacing.ActiveControl) error {
	if _, ok := pacing.RangeFor(f); !ok {
		return fmt.Errorf("%w: %q", pacing.ErrUnknownField, f)
	}
	if control != "" && !validControl(control) {
		return fmt.Errorf("unknown active control %q", control)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Locked && p.state.Mode != pacing.ModeDOO {
		return ErrLocked
	}
	p.set(f, pacing.ClampValue(f, v))
	if control != "" {
		p.state.ActiveControl = control
	}
	return nil
}

// SetMode sets the pacing mode. The emergency mode is accepted while
// locked.
func (p *Panel) SetMode(m pacing.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Locked && m != pacing.ModeDOO {
		return ErrLocked
	}
	p.state.Mode = m
	return nil
}

// SetActiveControl rebinds the encoder. It is accepted while locked since
// it changes no pacing parameter.
func (p *Panel) SetActiveControl(c pacing.ActiveControl) error {
	if !validControl(c) {
		return fmt.Errorf("unknown active control %q", c)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ActiveControl = c
	return nil
}

// ToggleLock flips the device lock and returns the new state.
func (p *Panel) ToggleLock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Locked = !p.state.Locked
	return p.state.Locked
}

// Locked reports the device lock.
func (p *Panel) Locked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Locked
}

// Health returns the health response and clears the latched button
// presses, so each press is reported exactly once.
func (p *Panel) Health() hardware.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	mode := s.Mode.Index()
	diag, _ := json.Marshal(diagnostics{Encoder: p.counters, ActiveControl: s.ActiveControl})

	st := hardware.Status{
		Status:       "ok",
		Rate:         &s.Rate,
		AOutput:      &s.AOutput,
		VOutput:      &s.VOutput,
		Locked:       &s.Locked,
		Mode:         &mode,
		ASensitivity: &s.ASensitivity,
		VSensitivity: &s.VSensitivity,
		Buttons: &hardware.Buttons{
			UpPressed:        p.pressed[0],
			DownPressed:      p.pressed[1],
			LeftPressed:      p.pressed[2],
			EmergencyPressed: p.pressed[3],
		},
		Hardware: diag,
	}
	p.pressed = [4]bool{}
	return st
}

// Scan samples r every interval until ctx is done. Read errors are logged
// once per failure streak.
func (p *Panel) Scan(ctx context.Context, r gpio.Reader, interval time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l, err := r.Read()
			if err != nil {
				if !failing {
					log.Printf("panel: gpio read failed: %v", err)
					failing = true
				}
				continue
			}
			if failing {
				log.Printf("panel: gpio read recovered")
				failing = false
			}
			p.Sample(l, now())
		}
	}
}
