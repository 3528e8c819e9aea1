package pacing

import (
	"fmt"
	"time"
)

// Emergency (DOO) parameters.
const (
	EmergencyRate    = 80
	EmergencyAOutput = 20
	EmergencyVOutput = 25
)

// Machine is the sole writer of the pacing session. It arbitrates operator
// commands and hardware reports, and queues the resulting hardware writes
// and events until the caller drains them.
//
// Machine is not safe for concurrent use; the owning event loop serializes
// every call.
type Machine struct {
	timing    Timing
	s         Session
	connected bool

	lastActivity  time.Time // auto-lock countdown start
	watchdogSince time.Time // last sensitivity change or screen entry
	notices       []Notice

	events   []Event
	commands []HardwareCommand
}

// NewMachine creates a machine holding the default session.
func NewMachine(timing Timing, now time.Time) *Machine {
	return &Machine{
		timing:        timing,
		s:             DefaultSession(),
		lastActivity:  now,
		watchdogSince: now,
	}
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	return m.s
}

// Connected reports whether the hardware link is up.
func (m *Machine) Connected() bool {
	return m.connected
}

// ControlsLocked reports whether primary controls reject writes. DOO fixes
// its parameters, so it behaves as locked even when the session is not.
func (m *Machine) ControlsLocked() bool {
	return m.s.Locked || m.s.Mode == ModeDOO
}

// Drain returns and clears the queued events and hardware commands.
func (m *Machine) Drain() ([]Event, []HardwareCommand) {
	events, commands := m.events, m.commands
	m.events, m.commands = nil, nil
	return events, commands
}

// SetControlValue writes a primary control (rate or an output).
func (m *Machine) SetControlValue(field Field, value float64, now time.Time) error {
	if !field.IsPrimary() {
		return ErrUnknownField
	}
	if m.ControlsLocked() {
		m.rejectLocked(now)
		return ErrLocked
	}
	v := ClampValue(field, value)
	m.s.set(field, v)
	m.markLocal(now)
	m.touch(now)
	m.push(HardwareCommand{Kind: CommandSetValue, Field: field, Value: v})
	m.evaluate(now)
	return nil
}

// NavigateMode moves the pending mode, or the DDD field focus while the DDD
// screen is open. It never commits a mode.
func (m *Machine) NavigateMode(dir Direction, now time.Time) error {
	m.touch(now)
	if m.s.Locked {
		m.rejectLocked(now)
		return ErrLocked
	}

	switch m.s.Screen {
	case ScreenDDD:
		switch {
		case dir == Up && m.s.SelectedDDDField == FieldVSensitivity:
			m.selectDDDField(FieldASensitivity)
		case dir == Down && m.s.SelectedDDDField == FieldASensitivity:
			m.selectDDDField(FieldVSensitivity)
		}
		return nil
	case ScreenVVI, ScreenDOO:
		return nil
	}

	m.s.PendingMode = m.s.PendingMode.Step(dir)
	return nil
}

func (m *Machine) selectDDDField(f Field) {
	m.s.SelectedDDDField = f
	m.push(HardwareCommand{Kind: CommandActiveControl, Control: f.Control(), Value: m.s.value(f)})
}

// CommitMode is the left-arrow action: it leaves the DDD/VVI screens or
// commits the pending mode. It cannot leave the DOO screen.
func (m *Machine) CommitMode(now time.Time) error {
	m.touch(now)
	if m.s.Screen == ScreenDOO {
		return nil
	}
	if m.s.Locked {
		m.rejectLocked(now)
		return ErrLocked
	}

	if m.s.Screen == ScreenDDD || m.s.Screen == ScreenVVI {
		m.s.Screen = ScreenNone
		m.push(HardwareCommand{Kind: CommandActiveControl, Control: ControlNone})
		return nil
	}

	mode := m.s.PendingMode
	if mode == ModeDOO {
		m.enterEmergency(now)
		return nil
	}
	m.s.Mode = mode
	m.markLocal(now)
	m.push(HardwareCommand{Kind: CommandSetMode, Mode: mode})
	m.openScreen(screenFor(mode), now)
	m.emit(now, EventModeCommitted, mode.String())
	m.evaluate(now)
	return nil
}

// ToggleEmergency enters or leaves the DOO emergency screen. It bypasses
// the lock. Leaving closes the screen only; forced values and the DOO mode
// stay until the operator changes them.
func (m *Machine) ToggleEmergency(now time.Time) {
	m.touch(now)
	if m.s.Screen == ScreenDOO {
		m.s.Screen = ScreenNone
		m.emit(now, EventEmergencyOff, "")
		return
	}
	m.enterEmergency(now)
}

func (m *Machine) enterEmergency(now time.Time) {
	m.s.Rate = EmergencyRate
	m.s.AOutput = EmergencyAOutput
	m.s.VOutput = EmergencyVOutput
	m.s.Mode = ModeDOO
	m.s.PendingMode = ModeDOO
	m.s.Screen = ScreenDOO
	m.markLocal(now)
	m.push(HardwareCommand{Kind: CommandBatch, Batch: []HardwareCommand{
		{Kind: CommandSetMode, Mode: ModeDOO},
		{Kind: CommandSetValue, Field: FieldRate, Value: EmergencyRate},
		{Kind: CommandSetValue, Field: FieldAOutput, Value: EmergencyAOutput},
		{Kind: CommandSetValue, Field: FieldVOutput, Value: EmergencyVOutput},
	}})
	m.notify(now, NoticeInfo, "Emergency DOO pacing active")
	m.emit(now, EventEmergencyOn, "")
}

// ToggleLock flips the lock optimistically. The hardware result, when it
// arrives, is applied with ReconcileLock.
func (m *Machine) ToggleLock(now time.Time) {
	m.s.Locked = !m.s.Locked
	m.touch(now)
	m.markLocal(now)
	m.push(HardwareCommand{Kind: CommandToggleLock, Locked: m.s.Locked})
	m.emitLock(now, m.s.Locked)
}

// ReconcileLock adopts the hardware lock state returned by a toggle round
// trip. Hardware wins on mismatch.
func (m *Machine) ReconcileLock(locked bool, now time.Time) {
	if m.s.Locked == locked {
		return
	}
	m.s.Locked = locked
	m.emitLock(now, locked)
}

// SetSettingsField edits a sensitivity on the DDD or VVI panel.
func (m *Machine) SetSettingsField(screen Screen, field Field, value float64, now time.Time) error {
	if !settingsField(screen, field) {
		return ErrUnknownField
	}
	if m.s.Locked {
		m.rejectLocked(now)
		return ErrLocked
	}
	v := ClampValue(field, value)
	m.s.set(field, v)
	m.watchdogSince = now
	m.touch(now)
	if m.connected {
		m.markLocal(now)
		m.push(HardwareCommand{Kind: CommandSetValue, Field: field, Value: v, Control: field.Control()})
	}
	return nil
}

func settingsField(screen Screen, field Field) bool {
	switch screen {
	case ScreenDDD:
		return field.IsSensitivity()
	case ScreenVVI:
		return field == FieldVSensitivity
	}
	return false
}

// HandleButton routes a hardware button edge to its command.
func (m *Machine) HandleButton(b Button, now time.Time) error {
	switch b {
	case ButtonUp:
		return m.NavigateMode(Up, now)
	case ButtonDown:
		return m.NavigateMode(Down, now)
	case ButtonLeft:
		return m.CommitMode(now)
	case ButtonEmergency:
		m.ToggleEmergency(now)
		return nil
	}
	return fmt.Errorf("unknown button %q", b)
}

// Control returns the bounded control for f, wired to this machine.
func (m *Machine) Control(f Field, now time.Time) (Control, error) {
	r, ok := RangeFor(f)
	if !ok {
		return Control{}, ErrUnknownField
	}
	c := Control{
		Title:       f.Title(),
		Unit:        f.Unit(),
		Field:       f,
		Range:       r,
		Value:       m.s.value(f),
		OnLockError: func() { m.rejectLocked(now) },
	}
	if f.IsPrimary() {
		c.IsLocked = m.ControlsLocked
		c.OnChange = func(v float64) error { return m.SetControlValue(f, v, now) }
		return c, nil
	}
	c.Inverted = true
	c.IsLocked = func() bool { return m.s.Locked }
	c.OnChange = func(v float64) error { return m.SetSettingsField(m.settingsScreenFor(f), f, v, now) }
	return c, nil
}

// settingsScreenFor picks the panel a sensitivity edit belongs to: the
// open one when it shows f, otherwise DDD which shows both.
func (m *Machine) settingsScreenFor(f Field) Screen {
	if settingsField(m.s.Screen, f) {
		return m.s.Screen
	}
	return ScreenDDD
}

// Execute applies an operator command. It is the single entry point used
// by the web panel.
func (m *Machine) Execute(cmd Command, now time.Time) error {
	switch cmd.Op {
	case OpSetControl:
		return m.SetControlValue(cmd.Field, cmd.Value, now)
	case OpNudge:
		c, err := m.Control(cmd.Field, now)
		if err != nil {
			return err
		}
		return c.Nudge(cmd.Direction)
	case OpSlide:
		c, err := m.Control(cmd.Field, now)
		if err != nil {
			return err
		}
		return c.Slide(cmd.Value)
	case OpNavigate:
		if cmd.Direction != Up && cmd.Direction != Down {
			return fmt.Errorf("unknown direction %q", cmd.Direction)
		}
		return m.NavigateMode(cmd.Direction, now)
	case OpCommit:
		return m.CommitMode(now)
	case OpEmergency:
		m.ToggleEmergency(now)
		return nil
	case OpToggleLock:
		m.ToggleLock(now)
		return nil
	case OpSetSettings:
		return m.SetSettingsField(cmd.Screen, cmd.Field, cmd.Value, now)
	}
	return fmt.Errorf("unknown op %q", cmd.Op)
}

// openScreen makes s the only active screen and seeds the hardware active
// control for sensitivity screens.
func (m *Machine) openScreen(s Screen, now time.Time) {
	m.s.Screen = s
	switch s {
	case ScreenDDD:
		m.s.SelectedDDDField = FieldASensitivity
		m.watchdogSince = now
		m.push(HardwareCommand{Kind: CommandActiveControl, Control: ControlASensitivity, Value: m.s.ASensitivity})
	case ScreenVVI:
		m.watchdogSince = now
		m.push(HardwareCommand{Kind: CommandActiveControl, Control: ControlVSensitivity, Value: m.s.VSensitivity})
	}
}

// evaluate applies the DDD output safety transitions. The atrial check runs
// first and the first match wins, so both outputs at zero demote once.
func (m *Machine) evaluate(now time.Time) {
	if m.s.Mode != ModeDDD {
		return
	}
	switch {
	case m.s.AOutput == 0:
		m.demote(ModeVVI, now, "atrial output is 0")
	case m.s.VOutput == 0:
		m.demote(ModeAAI, now, "ventricular output is 0")
	}
}

func (m *Machine) demote(to Mode, now time.Time, reason string) {
	m.s.Mode = to
	m.s.PendingMode = to
	m.push(HardwareCommand{Kind: CommandSetMode, Mode: to})
	m.openScreen(screenFor(to), now)
	m.notify(now, NoticeInfo, fmt.Sprintf("DDD switched to %s: %s", to, reason))
	m.emit(now, EventModeDemoted, reason)
}

func (m *Machine) rejectLocked(now time.Time) {
	m.notify(now, NoticeLocked, "Controls are locked")
	m.emit(now, EventLockRejected, "")
}

func (m *Machine) notify(now time.Time, kind NoticeKind, msg string) {
	n := Notice{Kind: kind, Message: msg, Expires: now.Add(m.timing.NoticeTTL)}
	// A repeated notice of the same kind restarts its lifetime.
	for i := range m.notices {
		if m.notices[i].Kind == kind && m.notices[i].Message == msg {
			m.notices[i] = n
			return
		}
	}
	m.notices = append(m.notices, n)
}

// push queues a hardware write. Writes are dropped while disconnected.
func (m *Machine) push(cmd HardwareCommand) {
	if !m.connected {
		return
	}
	m.commands = append(m.commands, cmd)
}

func (m *Machine) emit(now time.Time, t EventType, detail string) {
	m.events = append(m.events, Event{
		Timestamp: now,
		Type:      t,
		Mode:      m.s.Mode,
		Locked:    m.s.Locked,
		Detail:    detail,
	})
}

func (m *Machine) emitLock(now time.Time, locked bool) {
	if locked {
		m.emit(now, EventLocked, "")
	} else {
		m.emit(now, EventUnlocked, "")
	}
}

// markLocal starts the local-control-active window.
func (m *Machine) markLocal(now time.Time) {
	m.s.Origin = Origin{Source: SourceLocal, At: now}
}

// localActive reports whether a local write happened within the cooldown.
func (m *Machine) localActive(now time.Time) bool {
	return m.s.Origin.Source == SourceLocal && !m.s.Origin.At.IsZero() &&
		now.Sub(m.s.Origin.At) < m.timing.Cooldown
}

// touch restarts the auto-lock countdown.
func (m *Machine) touch(now time.Time) {
	m.lastActivity = now
}
