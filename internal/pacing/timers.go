package pacing

import "time"

// Tick runs the session timers: notice expiry, the auto-lock countdown and
// the stuck-encoder watchdog. The owning loop calls it periodically; once
// the loop stops calling Tick no timer can fire.
func (m *Machine) Tick(now time.Time) {
	m.expireNotices(now)

	if !m.s.Locked && m.timing.AutoLock > 0 && now.Sub(m.lastActivity) >= m.timing.AutoLock {
		m.s.Locked = true
		m.lastActivity = now
		m.push(HardwareCommand{Kind: CommandEnsureLocked, Locked: true})
		m.emit(now, EventAutoLocked, "")
	}

	m.checkWatchdog(now)
}

// checkWatchdog re-announces the active control when a sensitivity screen
// has seen no sensitivity change for a full watchdog period. It only talks
// to hardware; the session is unchanged.
func (m *Machine) checkWatchdog(now time.Time) {
	if !m.connected || m.timing.Watchdog <= 0 {
		return
	}
	control := m.activeControl()
	if control == ControlNone {
		return
	}
	if now.Sub(m.watchdogSince) < m.timing.Watchdog {
		return
	}
	m.watchdogSince = now
	m.push(HardwareCommand{Kind: CommandActiveControl, Control: control, Value: m.s.value(Field(control))})
}

// activeControl is the field the encoder should drive for the open screen.
func (m *Machine) activeControl() ActiveControl {
	switch m.s.Screen {
	case ScreenDDD:
		return m.s.SelectedDDDField.Control()
	case ScreenVVI:
		return ControlVSensitivity
	}
	return ControlNone
}

func (m *Machine) expireNotices(now time.Time) {
	kept := m.notices[:0]
	for _, n := range m.notices {
		if now.Before(n.Expires) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

// Snapshot is a point-in-time view of the machine for presentation.
// It is a value type and holds no references into the machine.
type Snapshot struct {
	Session
	Connected      bool
	ControlsLocked bool
	ActiveControl  ActiveControl
	Notices        []Notice
	AutoLockIn     time.Duration
}

// Snapshot returns the current view. Expired notices are omitted.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	var notices []Notice
	for _, n := range m.notices {
		if now.Before(n.Expires) {
			notices = append(notices, n)
		}
	}
	var lockIn time.Duration
	if !m.s.Locked && m.timing.AutoLock > 0 {
		lockIn = m.timing.AutoLock - now.Sub(m.lastActivity)
		if lockIn < 0 {
			lockIn = 0
		}
	}
	return Snapshot{
		Session:        m.s,
		Connected:      m.connected,
		ControlsLocked: m.ControlsLocked(),
		ActiveControl:  m.activeControl(),
		Notices:        notices,
		AutoLockIn:     lockIn,
	}
}
