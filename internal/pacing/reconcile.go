package pacing

import "time"

// Per-field thresholds below which a hardware value is treated as jitter.
var epsilon = map[Field]float64{
	FieldRate:         0.1,
	FieldAOutput:      0.05,
	FieldVOutput:      0.05,
	FieldASensitivity: 0.01,
	FieldVSensitivity: 0.01,
}

// SetConnected records the hardware link state. Disconnection never
// changes the session.
func (m *Machine) SetConnected(connected bool, now time.Time) {
	if m.connected == connected {
		return
	}
	m.connected = connected
	if connected {
		m.watchdogSince = now
		m.emit(now, EventHardwareConnected, "")
		return
	}
	m.emit(now, EventHardwareDisconnected, "")
}

// ApplyUpdate reconciles a hardware report with the session.
//
// A hardware mode change is always adopted. Every other field is ignored
// while the local-control-active window is open, and numeric values within
// the field epsilon of the session value are dropped. Reports carry current
// hardware values, so anything ignored here is offered again by the next
// poll. Only an applied change counts as activity for auto-lock.
func (m *Machine) ApplyUpdate(u ControlUpdate, now time.Time) {
	if u.Empty() {
		return
	}

	changed := false
	if u.Mode != nil && u.Mode.Valid() && *u.Mode != m.s.Mode {
		m.adoptMode(*u.Mode, now)
		changed = true
	}

	if !m.localActive(now) {
		applied := false
		for _, fv := range u.numeric() {
			if m.applyValue(fv, now) {
				applied = true
			}
		}
		if m.applyLock(u.Locked, now) {
			applied = true
		}
		if applied {
			m.s.Origin = Origin{Source: SourceHardware, At: now}
			changed = true
		}
	}

	if changed {
		m.touch(now)
	}
	m.evaluate(now)
}

// Sync applies the first report after a (re)connection. Hardware is
// authoritative for mode, lock and the sensitivities only. Rate and the
// outputs keep their session values, which are written back to hardware
// where they differ.
func (m *Machine) Sync(u ControlUpdate, now time.Time) {
	if u.Mode != nil && u.Mode.Valid() && *u.Mode != m.s.Mode {
		m.adoptMode(*u.Mode, now)
	}

	applied := m.applyLock(u.Locked, now)
	for _, fv := range u.numeric() {
		if fv.field.IsSensitivity() && m.applyValue(fv, now) {
			applied = true
		}
	}
	if applied {
		m.s.Origin = Origin{Source: SourceHardware, At: now}
	}

	pushed := false
	for _, fv := range u.numeric() {
		if !fv.field.IsPrimary() {
			continue
		}
		local := m.s.value(fv.field)
		if abs(ClampValue(fv.field, fv.value)-local) <= epsilon[fv.field] {
			continue
		}
		m.push(HardwareCommand{Kind: CommandSetValue, Field: fv.field, Value: local})
		pushed = true
	}
	if pushed {
		// Hold off the stale hardware values until the writes land.
		m.markLocal(now)
	}
	m.evaluate(now)
}

// applyValue sets a hardware value when it differs from the session by
// more than the field epsilon.
func (m *Machine) applyValue(fv fieldValue, now time.Time) bool {
	v := ClampValue(fv.field, fv.value)
	if abs(v-m.s.value(fv.field)) <= epsilon[fv.field] {
		return false
	}
	m.s.set(fv.field, v)
	if fv.field.IsSensitivity() {
		m.watchdogSince = now
	}
	return true
}

func (m *Machine) applyLock(locked *bool, now time.Time) bool {
	if locked == nil || *locked == m.s.Locked {
		return false
	}
	m.s.Locked = *locked
	m.emitLock(now, m.s.Locked)
	return true
}

// adoptMode takes a hardware-reported mode without the lock check; the
// device has already validated the front-panel action.
func (m *Machine) adoptMode(mode Mode, now time.Time) {
	m.s.Mode = mode
	m.s.PendingMode = mode
	m.openScreen(screenFor(mode), now)
	m.emit(now, EventModeAdopted, mode.String())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
