// Package hardware talks to the pacemaker hardware adapter over HTTP.
//
// The adapter is an unreliable peer: every call may fail, and callers are
// expected to log failures and carry on.
package hardware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// ErrDeviceLocked is returned when the adapter refuses a write because the
// device itself is locked (HTTP 403).
var ErrDeviceLocked = errors.New("device locked")

// UnreachableError wraps transport failures, unexpected status codes and
// undecodable responses.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("hardware %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// Client is the adapter surface used by the bridge.
type Client interface {
	Health(ctx context.Context) (Status, error)
	SetValue(ctx context.Context, field pacing.Field, value float64, control pacing.ActiveControl) error
	SetMode(ctx context.Context, mode pacing.Mode) error
	SetActiveControl(ctx context.Context, control pacing.ActiveControl) error
	ToggleLock(ctx context.Context) (bool, error)
	Lock(ctx context.Context) (bool, error)
}

// Status is the body of GET /api/health. Absent fields are not reported by
// the adapter.
type Status struct {
	Status       string   `json:"status"`
	Rate         *float64 `json:"rate,omitempty"`
	AOutput      *float64 `json:"a_output,omitempty"`
	VOutput      *float64 `json:"v_output,omitempty"`
	Locked       *bool    `json:"locked,omitempty"`
	Mode         *int     `json:"mode,omitempty"`
	ASensitivity *float64 `json:"a_sensitivity,omitempty"`
	VSensitivity *float64 `json:"v_sensitivity,omitempty"`
	Buttons      *Buttons `json:"buttons,omitempty"`

	// Hardware carries adapter diagnostics (encoder rotation counters) and
	// is passed through untouched.
	Hardware json.RawMessage `json:"hardware,omitempty"`
}

// Buttons holds the front-panel press flags.
type Buttons struct {
	UpPressed        bool `json:"up_pressed"`
	DownPressed      bool `json:"down_pressed"`
	LeftPressed      bool `json:"left_pressed"`
	EmergencyPressed bool `json:"emergency_pressed"`
}

// Pressed returns the press flag for b.
func (b Buttons) Pressed(btn pacing.Button) bool {
	switch btn {
	case pacing.ButtonUp:
		return b.UpPressed
	case pacing.ButtonDown:
		return b.DownPressed
	case pacing.ButtonLeft:
		return b.LeftPressed
	case pacing.ButtonEmergency:
		return b.EmergencyPressed
	}
	return false
}

// AllButtons lists the front-panel buttons in reporting order.
var AllButtons = []pacing.Button{pacing.ButtonUp, pacing.ButtonDown, pacing.ButtonLeft, pacing.ButtonEmergency}

// ValueRequest is the body of POST /api/<field>/set.
type ValueRequest struct {
	Value         float64              `json:"value"`
	ActiveControl pacing.ActiveControl `json:"active_control,omitempty"`
}

// ModeRequest is the body of POST /api/mode/set.
type ModeRequest struct {
	Mode int `json:"mode"`
}

// ActiveControlRequest is the body of POST /api/active_control/set.
type ActiveControlRequest struct {
	ActiveControl pacing.ActiveControl `json:"active_control"`
}

// LockResponse is returned by the lock endpoints.
type LockResponse struct {
	Locked bool `json:"locked"`
}
