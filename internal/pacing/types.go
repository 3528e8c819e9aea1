// Package pacing contains the pacemaker control-panel session and the state
// machine that owns it. This package has NO I/O: hardware writes and
// published events are queued and drained by the caller.
// Time is always injectable via time.Time parameters.
package pacing

import (
	"errors"
	"time"
)

// ErrLocked is returned when a mutating command is attempted while the
// session is locked, or while DOO forces the primary controls read-only.
var ErrLocked = errors.New("controls locked")

// ErrUnknownField is returned for fields a command does not accept.
var ErrUnknownField = errors.New("unknown field")

// Mode is a pacing mode. The numeric value is the index shared with the
// hardware adapter.
type Mode int

const (
	ModeVOO Mode = iota
	ModeVVI
	ModeVVT
	ModeAOO
	ModeAAI
	ModeDOO
	ModeDDD
	ModeDDI
)

// ModeCount is the number of pacing modes; navigation wraps at both ends.
const ModeCount = 8

var modeNames = [ModeCount]string{"VOO", "VVI", "VVT", "AOO", "AAI", "DOO", "DDD", "DDI"}

func (m Mode) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return modeNames[m]
}

// Valid reports whether m is one of the eight modes.
func (m Mode) Valid() bool {
	return m >= 0 && m < ModeCount
}

// Index returns the hardware mode index.
func (m Mode) Index() int {
	return int(m)
}

// Step moves one position through the mode list. Up moves towards index 0
// and wraps from VOO to DDI; Down moves the other way.
func (m Mode) Step(dir Direction) Mode {
	if dir == Up {
		return (m + ModeCount - 1) % ModeCount
	}
	return (m + 1) % ModeCount
}

// ModeFromIndex converts a hardware mode index.
func ModeFromIndex(i int) (Mode, bool) {
	m := Mode(i)
	return m, m.Valid()
}

// ParseMode converts a mode name such as "DDD".
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), true
		}
	}
	return 0, false
}

// Direction is a navigation direction.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Screen is the settings panel currently shown. At most one is active.
type Screen string

const (
	ScreenNone Screen = "NONE"
	ScreenDDD  Screen = "DDD"
	ScreenVVI  Screen = "VVI"
	ScreenDOO  Screen = "DOO"
)

// ParseScreen converts a screen name, case-sensitive.
func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case ScreenNone, ScreenDDD, ScreenVVI, ScreenDOO:
		return Screen(s), true
	}
	return "", false
}

// screenFor maps a mode to the settings screen it opens.
func screenFor(m Mode) Screen {
	switch m {
	case ModeDDD:
		return ScreenDDD
	case ModeVVI:
		return ScreenVVI
	case ModeDOO:
		return ScreenDOO
	default:
		return ScreenNone
	}
}

// Field names a numeric session field. Values match the adapter wire names.
type Field string

const (
	FieldRate         Field = "rate"
	FieldAOutput      Field = "a_output"
	FieldVOutput      Field = "v_output"
	FieldASensitivity Field = "a_sensitivity"
	FieldVSensitivity Field = "v_sensitivity"
)

// Fields lists every numeric field in display order.
var Fields = []Field{FieldRate, FieldAOutput, FieldVOutput, FieldASensitivity, FieldVSensitivity}

// Title is the display name of f.
func (f Field) Title() string {
	switch f {
	case FieldRate:
		return "Rate"
	case FieldAOutput:
		return "A Output"
	case FieldVOutput:
		return "V Output"
	case FieldASensitivity:
		return "A Sensitivity"
	case FieldVSensitivity:
		return "V Sensitivity"
	}
	return string(f)
}

// Unit is the display unit of f.
func (f Field) Unit() string {
	switch {
	case f == FieldRate:
		return "ppm"
	case f.IsPrimary():
		return "mA"
	case f.IsSensitivity():
		return "mV"
	}
	return ""
}

// IsPrimary reports whether f is a primary control (rate or an output).
func (f Field) IsPrimary() bool {
	return f == FieldRate || f == FieldAOutput || f == FieldVOutput
}

// IsSensitivity reports whether f is a sensing threshold.
func (f Field) IsSensitivity() bool {
	return f == FieldASensitivity || f == FieldVSensitivity
}

// Control returns the hardware active-control name for f.
func (f Field) Control() ActiveControl {
	return ActiveControl(f)
}

// ActiveControl is the logical field bound to the hardware rotary encoder.
type ActiveControl string

const (
	ControlNone         ActiveControl = "none"
	ControlRate         ActiveControl = "rate"
	ControlAOutput      ActiveControl = "a_output"
	ControlVOutput      ActiveControl = "v_output"
	ControlASensitivity ActiveControl = "a_sensitivity"
	ControlVSensitivity ActiveControl = "v_sensitivity"
)

// Source identifies the last writer of session fields.
type Source string

const (
	SourceLocal    Source = "local"
	SourceHardware Source = "hardware"
)

// Origin records who last wrote the session and when.
type Origin struct {
	Source Source
	At     time.Time
}

// Session is the single pacing session. It is mutated only by Machine.
type Session struct {
	Mode             Mode
	PendingMode      Mode
	Rate             float64 // ppm
	AOutput          float64 // mA
	VOutput          float64 // mA
	ASensitivity     float64 // mV, 0 = ASYNC
	VSensitivity     float64 // mV, 0 = ASYNC
	Locked           bool
	Screen           Screen
	SelectedDDDField Field
	Origin           Origin
}

// DefaultSession returns the session every run starts with.
func DefaultSession() Session {
	return Session{
		Mode:             ModeVOO,
		PendingMode:      ModeVOO,
		Rate:             80,
		AOutput:          10,
		VOutput:          10,
		ASensitivity:     0.5,
		VSensitivity:     2.0,
		Screen:           ScreenNone,
		SelectedDDDField: FieldASensitivity,
		Origin:           Origin{Source: SourceLocal},
	}
}

func (s *Session) value(f Field) float64 {
	switch f {
	case FieldRate:
		return s.Rate
	case FieldAOutput:
		return s.AOutput
	case FieldVOutput:
		return s.VOutput
	case FieldASensitivity:
		return s.ASensitivity
	case FieldVSensitivity:
		return s.VSensitivity
	}
	return 0
}

func (s *Session) set(f Field, v float64) {
	switch f {
	case FieldRate:
		s.Rate = v
	case FieldAOutput:
		s.AOutput = v
	case FieldVOutput:
		s.VOutput = v
	case FieldASensitivity:
		s.ASensitivity = v
	case FieldVSensitivity:
		s.VSensitivity = v
	}
}

// Value returns the current value of f.
func (s Session) Value(f Field) float64 {
	return s.value(f)
}

// Button is a discrete front-panel button edge.
type Button string

const (
	ButtonUp        Button = "up"
	ButtonDown      Button = "down"
	ButtonLeft      Button = "left"
	ButtonEmergency Button = "emergency"
)

// ControlUpdate is a normalized hardware report. Nil fields were not
// reported.
type ControlUpdate struct {
	Rate         *float64
	AOutput      *float64
	VOutput      *float64
	Locked       *bool
	Mode         *Mode
	ASensitivity *float64
	VSensitivity *float64
}

// Empty reports whether the update carries no fields.
func (u ControlUpdate) Empty() bool {
	return u.Rate == nil && u.AOutput == nil && u.VOutput == nil && u.Locked == nil &&
		u.Mode == nil && u.ASensitivity == nil && u.VSensitivity == nil
}

func (u ControlUpdate) numeric() []fieldValue {
	var out []fieldValue
	add := func(f Field, v *float64) {
		if v != nil {
			out = append(out, fieldValue{f, *v})
		}
	}
	add(FieldRate, u.Rate)
	add(FieldAOutput, u.AOutput)
	add(FieldVOutput, u.VOutput)
	add(FieldASensitivity, u.ASensitivity)
	add(FieldVSensitivity, u.VSensitivity)
	return out
}

type fieldValue struct {
	field Field
	value float64
}

// EventType is a published session event.
type EventType string

const (
	EventModeCommitted        EventType = "MODE_COMMITTED"
	EventModeAdopted          EventType = "MODE_ADOPTED"
	EventModeDemoted          EventType = "MODE_DEMOTED"
	EventEmergencyOn          EventType = "EMERGENCY_ON"
	EventEmergencyOff         EventType = "EMERGENCY_OFF"
	EventLocked               EventType = "LOCKED"
	EventUnlocked             EventType = "UNLOCKED"
	EventAutoLocked           EventType = "AUTO_LOCKED"
	EventLockRejected         EventType = "LOCK_REJECTED"
	EventHardwareConnected    EventType = "HARDWARE_CONNECTED"
	EventHardwareDisconnected EventType = "HARDWARE_DISCONNECTED"
)

// Event is a state change worth publishing.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Mode      Mode
	Locked    bool
	Detail    string
}

// CommandKind is the kind of hardware write.
type CommandKind string

const (
	CommandSetValue      CommandKind = "set_value"
	CommandSetMode       CommandKind = "set_mode"
	CommandActiveControl CommandKind = "active_control"
	CommandToggleLock    CommandKind = "toggle_lock"
	CommandEnsureLocked  CommandKind = "ensure_locked"
	CommandBatch         CommandKind = "batch"
)

// HardwareCommand is a fire-and-forget write to the hardware adapter.
type HardwareCommand struct {
	Kind    CommandKind
	Field   Field
	Value   float64
	Mode    Mode
	Control ActiveControl
	Locked  bool // expected lock state for lock commands
	Batch   []HardwareCommand
}

// Key identifies commands that supersede each other. Commands with an empty
// key are never coalesced.
func (c HardwareCommand) Key() string {
	switch c.Kind {
	case CommandSetValue:
		return "value:" + string(c.Field)
	case CommandSetMode:
		return "mode"
	case CommandActiveControl:
		return "active_control"
	case CommandEnsureLocked:
		return "ensure_locked"
	}
	return ""
}

// NoticeKind classifies a transient notification.
type NoticeKind string

const (
	NoticeLocked NoticeKind = "locked"
	NoticeInfo   NoticeKind = "info"
)

// Notice is a toast-style message that disappears at Expires.
type Notice struct {
	Kind    NoticeKind
	Message string
	Expires time.Time
}

// Timing holds the durations that drive the session timers.
type Timing struct {
	Cooldown  time.Duration // local-control-active window
	AutoLock  time.Duration
	Watchdog  time.Duration
	NoticeTTL time.Duration
}

// DefaultTiming returns the standard timer durations.
func DefaultTiming() Timing {
	return Timing{
		Cooldown:  500 * time.Millisecond,
		AutoLock:  60 * time.Second,
		Watchdog:  10 * time.Second,
		NoticeTTL: 3 * time.Second,
	}
}
