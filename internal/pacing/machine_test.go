package pacing

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(DefaultTiming(), t0)
}

func newConnectedMachine(t *testing.T) *Machine {
	t.Helper()
	m := newTestMachine(t)
	m.SetConnected(true, t0)
	m.Drain()
	return m
}

func commandKinds(cmds []HardwareCommand) []CommandKind {
	var kinds []CommandKind
	for _, c := range cmds {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func hasNotice(m *Machine, kind NoticeKind, now time.Time) bool {
	for _, n := range m.Snapshot(now).Notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

// commitTo navigates down from the current pending mode to target and commits.
func commitTo(t *testing.T, m *Machine, target Mode, now time.Time) {
	t.Helper()
	for m.Session().PendingMode != target {
		if err := m.NavigateMode(Down, now); err != nil {
			t.Fatalf("navigate: %v", err)
		}
	}
	if err := m.CommitMode(now); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestDefaultSession(t *testing.T) {
	s := newTestMachine(t).Session()
	if s.Mode != ModeVOO || s.PendingMode != ModeVOO {
		t.Errorf("mode: got %v/%v, want VOO/VOO", s.Mode, s.PendingMode)
	}
	if s.Rate != 80 || s.AOutput != 10 || s.VOutput != 10 {
		t.Errorf("primary values: got %v/%v/%v, want 80/10/10", s.Rate, s.AOutput, s.VOutput)
	}
	if s.ASensitivity != 0.5 || s.VSensitivity != 2.0 {
		t.Errorf("sensitivities: got %v/%v, want 0.5/2.0", s.ASensitivity, s.VSensitivity)
	}
	if s.Locked {
		t.Error("expected unlocked session")
	}
	if s.Screen != ScreenNone {
		t.Errorf("screen: got %v, want NONE", s.Screen)
	}
}

func TestSetControlValueAlwaysWithinRange(t *testing.T) {
	inputs := []float64{-1e9, -1, 0, 0.5, 15, 29.9, 30, 80, 199, 200, 201, 1e9, math.Inf(1), math.Inf(-1)}
	for _, f := range []Field{FieldRate, FieldAOutput, FieldVOutput} {
		r, _ := RangeFor(f)
		for _, in := range inputs {
			m := newTestMachine(t)
			if err := m.SetControlValue(f, in, t0); err != nil {
				t.Fatalf("%s=%v: unexpected error %v", f, in, err)
			}
			got := m.Session().Value(f)
			if got < r.Min || got > r.Max {
				t.Errorf("%s=%v: got %v outside [%v,%v]", f, in, got, r.Min, r.Max)
			}
		}
	}
}

func TestSetControlValueRejectsUnknownField(t *testing.T) {
	m := newTestMachine(t)
	if err := m.SetControlValue(FieldASensitivity, 1, t0); !errors.Is(err, ErrUnknownField) {
		t.Errorf("got %v, want ErrUnknownField", err)
	}
}

func TestLockedRejectsSetControlValue(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleLock(t0)
	if !m.Session().Locked {
		t.Fatal("expected locked after ToggleLock")
	}
	m.Drain()

	err := m.SetControlValue(FieldRate, 120, t0)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("got %v, want ErrLocked", err)
	}
	if got := m.Session().Rate; got != 80 {
		t.Errorf("rate: got %v, want unchanged 80", got)
	}
	if !hasNotice(m, NoticeLocked, t0) {
		t.Error("expected a lock notice")
	}
	events, _ := m.Drain()
	if !hasEvent(events, EventLockRejected) {
		t.Error("expected LOCK_REJECTED event")
	}
}

func TestLockNoticeAutoDismisses(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleLock(t0)
	m.SetControlValue(FieldRate, 120, t0)

	m.Tick(t0.Add(2999 * time.Millisecond))
	if !hasNotice(m, NoticeLocked, t0.Add(2999*time.Millisecond)) {
		t.Error("notice should still be visible before 3s")
	}
	m.Tick(t0.Add(3 * time.Second))
	if hasNotice(m, NoticeLocked, t0.Add(3*time.Second)) {
		t.Error("notice should be dismissed after 3s")
	}
}

func TestDOORejectsSetControlValueRegardlessOfLock(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleEmergency(t0)
	if m.Session().Locked {
		t.Fatal("emergency should not set the lock flag")
	}
	if err := m.SetControlValue(FieldRate, 100, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("unlocked DOO: got %v, want ErrLocked", err)
	}

	// Leaving the DOO screen keeps the DOO mode, which still blocks writes.
	m.ToggleEmergency(t0)
	if err := m.SetControlValue(FieldRate, 100, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("DOO mode without screen: got %v, want ErrLocked", err)
	}

	m.ToggleLock(t0)
	if err := m.SetControlValue(FieldRate, 100, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("locked DOO: got %v, want ErrLocked", err)
	}
	if got := m.Session().Rate; got != EmergencyRate {
		t.Errorf("rate: got %v, want %v", got, EmergencyRate)
	}
}

func TestSetControlValueForwardsOnlyWhenConnected(t *testing.T) {
	m := newTestMachine(t)
	m.SetControlValue(FieldRate, 100, t0)
	if _, cmds := m.Drain(); len(cmds) != 0 {
		t.Errorf("disconnected: expected no hardware commands, got %v", commandKinds(cmds))
	}

	m.SetConnected(true, t0)
	m.Drain()
	m.SetControlValue(FieldRate, 250, t0)
	_, cmds := m.Drain()
	if len(cmds) != 1 {
		t.Fatalf("connected: expected 1 command, got %d", len(cmds))
	}
	if cmds[0].Kind != CommandSetValue || cmds[0].Field != FieldRate || cmds[0].Value != 200 {
		t.Errorf("command: got %+v, want set_value rate=200", cmds[0])
	}
	if o := m.Session().Origin; o.Source != SourceLocal || !o.At.Equal(t0) {
		t.Errorf("origin: got %+v, want local at t0", o)
	}
}

func TestNavigateWrapsBothEnds(t *testing.T) {
	m := newTestMachine(t)
	if err := m.NavigateMode(Up, t0); err != nil {
		t.Fatal(err)
	}
	if got := m.Session().PendingMode; got != ModeDDI || got.Index() != 7 {
		t.Errorf("up from VOO: got %v, want DDI (7)", got)
	}
	m.NavigateMode(Down, t0)
	if got := m.Session().PendingMode; got != ModeVOO {
		t.Errorf("down from DDI: got %v, want VOO", got)
	}
	if got := m.Session().Mode; got != ModeVOO {
		t.Errorf("navigation must not commit: mode got %v", got)
	}
}

func TestNavigateSequenceStaysInModeSet(t *testing.T) {
	m := newTestMachine(t)
	dirs := []Direction{Up, Up, Down, Up, Down, Down, Down, Down, Down, Down, Down, Down, Down, Down, Up}
	want := 0
	for i, d := range dirs {
		m.NavigateMode(d, t0)
		if d == Up {
			want = (want + 7) % 8
		} else {
			want = (want + 1) % 8
		}
		got := m.Session().PendingMode
		if !got.Valid() {
			t.Fatalf("step %d: pending mode %d outside mode set", i, got)
		}
		if got.Index() != want {
			t.Errorf("step %d: got index %d, want %d", i, got.Index(), want)
		}
	}
}

func TestNavigateUpThenCommitDDI(t *testing.T) {
	m := newTestMachine(t)
	m.NavigateMode(Up, t0)
	if err := m.CommitMode(t0); err != nil {
		t.Fatal(err)
	}
	s := m.Session()
	if s.Mode != ModeDDI {
		t.Errorf("mode: got %v, want DDI", s.Mode)
	}
	if s.Screen != ScreenNone {
		t.Errorf("screen: got %v, want NONE", s.Screen)
	}
}

func TestLockedNavigateAndCommit(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleLock(t0)
	if err := m.NavigateMode(Down, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("navigate: got %v, want ErrLocked", err)
	}
	if err := m.CommitMode(t0); !errors.Is(err, ErrLocked) {
		t.Errorf("commit: got %v, want ErrLocked", err)
	}
	if got := m.Session().PendingMode; got != ModeVOO {
		t.Errorf("pending mode changed while locked: %v", got)
	}
}

func TestCommitDDDOpensScreenAndNavigatesFields(t *testing.T) {
	m := newConnectedMachine(t)
	commitTo(t, m, ModeDDD, t0)

	s := m.Session()
	if s.Mode != ModeDDD || s.Screen != ScreenDDD {
		t.Fatalf("got mode %v screen %v, want DDD/DDD", s.Mode, s.Screen)
	}
	if s.SelectedDDDField != FieldASensitivity {
		t.Errorf("selected: got %v, want a_sensitivity", s.SelectedDDDField)
	}
	_, cmds := m.Drain()
	var seeded bool
	for _, c := range cmds {
		if c.Kind == CommandActiveControl && c.Control == ControlASensitivity {
			seeded = true
		}
	}
	if !seeded {
		t.Errorf("expected active control seeded to a_sensitivity, got %v", commandKinds(cmds))
	}

	m.NavigateMode(Down, t0)
	if got := m.Session().SelectedDDDField; got != FieldVSensitivity {
		t.Errorf("after down: got %v, want v_sensitivity", got)
	}
	m.NavigateMode(Down, t0)
	if got := m.Session().SelectedDDDField; got != FieldVSensitivity {
		t.Errorf("second down should be a no-op, got %v", got)
	}
	_, cmds = m.Drain()
	if len(cmds) != 1 || cmds[0].Control != ControlVSensitivity {
		t.Errorf("expected one v_sensitivity hint, got %+v", cmds)
	}

	m.NavigateMode(Up, t0)
	if got := m.Session().SelectedDDDField; got != FieldASensitivity {
		t.Errorf("after up: got %v, want a_sensitivity", got)
	}
	if got := m.Session().PendingMode; got != ModeDDD {
		t.Errorf("pending mode moved inside DDD screen: %v", got)
	}
}

func TestCommitVVIOpensScreen(t *testing.T) {
	m := newConnectedMachine(t)
	commitTo(t, m, ModeVVI, t0)
	if got := m.Session().Screen; got != ScreenVVI {
		t.Fatalf("screen: got %v, want VVI", got)
	}
	_, cmds := m.Drain()
	var seeded bool
	for _, c := range cmds {
		if c.Kind == CommandActiveControl && c.Control == ControlVSensitivity {
			seeded = true
		}
	}
	if !seeded {
		t.Error("expected active control seeded to v_sensitivity")
	}

	m.NavigateMode(Down, t0)
	if got := m.Session().PendingMode; got != ModeVVI {
		t.Errorf("navigation inside VVI screen changed pending mode to %v", got)
	}

	// Left arrow leaves the screen and resets the encoder target.
	m.CommitMode(t0)
	if got := m.Session().Screen; got != ScreenNone {
		t.Errorf("screen after exit: got %v, want NONE", got)
	}
	if got := m.Session().Mode; got != ModeVVI {
		t.Errorf("mode after exit: got %v, want VVI", got)
	}
	_, cmds = m.Drain()
	if len(cmds) != 1 || cmds[0].Control != ControlNone {
		t.Errorf("expected active control none, got %+v", cmds)
	}
}

func TestCommitCannotLeaveDOOScreen(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleEmergency(t0)
	if err := m.CommitMode(t0); err != nil {
		t.Fatalf("commit in DOO: %v", err)
	}
	if got := m.Session().Screen; got != ScreenDOO {
		t.Errorf("screen: got %v, want DOO", got)
	}
}

func TestEmergencyForcesValuesAndBatchesHardwareWrites(t *testing.T) {
	m := newConnectedMachine(t)
	commitTo(t, m, ModeDDD, t0)
	m.SetControlValue(FieldRate, 120, t0)
	m.ToggleLock(t0)
	m.Drain()

	m.ToggleEmergency(t0)
	s := m.Session()
	if s.Rate != 80 || s.AOutput != 20 || s.VOutput != 25 {
		t.Errorf("forced values: got %v/%v/%v, want 80/20/25", s.Rate, s.AOutput, s.VOutput)
	}
	if s.Mode != ModeDOO || s.PendingMode != ModeDOO || s.Screen != ScreenDOO {
		t.Errorf("got mode %v pending %v screen %v, want DOO", s.Mode, s.PendingMode, s.Screen)
	}
	events, cmds := m.Drain()
	if !hasEvent(events, EventEmergencyOn) {
		t.Error("expected EMERGENCY_ON event")
	}
	if len(cmds) != 1 || cmds[0].Kind != CommandBatch {
		t.Fatalf("expected one batch command, got %v", commandKinds(cmds))
	}
	if len(cmds[0].Batch) != 4 {
		t.Errorf("batch size: got %d, want 4", len(cmds[0].Batch))
	}
	var modeSet bool
	for _, c := range cmds[0].Batch {
		if c.Kind == CommandSetMode && c.Mode == ModeDOO {
			modeSet = true
		}
	}
	if !modeSet {
		t.Error("batch should set mode DOO")
	}
}

func TestEmergencyToggleTwice(t *testing.T) {
	m := newTestMachine(t)
	m.ToggleEmergency(t0)
	m.ToggleEmergency(t0)
	s := m.Session()
	if s.Screen == ScreenDOO {
		t.Error("second toggle should leave the DOO screen")
	}
	if s.Rate != 80 || s.AOutput != 20 || s.VOutput != 25 {
		t.Errorf("forced values should persist, got %v/%v/%v", s.Rate, s.AOutput, s.VOutput)
	}
}

func TestCommitDOOEntersEmergency(t *testing.T) {
	m := newTestMachine(t)
	commitTo(t, m, ModeDOO, t0)
	s := m.Session()
	if s.Screen != ScreenDOO || s.AOutput != EmergencyAOutput {
		t.Errorf("commit DOO: got screen %v a_output %v", s.Screen, s.AOutput)
	}
}

func TestDDDDemotesToVVIWhenAtrialOutputZero(t *testing.T) {
	m := newConnectedMachine(t)
	commitTo(t, m, ModeDDD, t0)
	m.Drain()

	m.SetControlValue(FieldAOutput, 0, t0)
	s := m.Session()
	if s.Mode != ModeVVI || s.PendingMode != ModeVVI {
		t.Errorf("mode: got %v/%v, want VVI", s.Mode, s.PendingMode)
	}
	if s.Screen != ScreenVVI {
		t.Errorf("screen: got %v, want VVI", s.Screen)
	}
	events, cmds := m.Drain()
	if !hasEvent(events, EventModeDemoted) {
		t.Error("expected MODE_DEMOTED")
	}
	var modeSet bool
	for _, c := range cmds {
		if c.Kind == CommandSetMode && c.Mode == ModeVVI {
			modeSet = true
		}
	}
	if !modeSet {
		t.Error("expected demotion pushed to hardware")
	}
}

func TestDDDDemotesToAAIWhenVentricularOutputZero(t *testing.T) {
	m := newTestMachine(t)
	commitTo(t, m, ModeDDD, t0)
	m.SetControlValue(FieldVOutput, -3, t0)
	s := m.Session()
	if s.Mode != ModeAAI {
		t.Errorf("mode: got %v, want AAI", s.Mode)
	}
	if s.Screen != ScreenNone {
		t.Errorf("screen: got %v, want NONE", s.Screen)
	}
}

func TestDDDSimultaneousZeroDemotesOnce(t *testing.T) {
	m := newTestMachine(t)
	m.SetControlValue(FieldAOutput, 0, t0)
	m.SetControlValue(FieldVOutput, 0, t0)
	commitTo(t, m, ModeDDD, t0)

	s := m.Session()
	if s.Mode != ModeVVI {
		t.Fatalf("mode: got %v, want VVI (atrial check first)", s.Mode)
	}
	events, _ := m.Drain()
	var demotions int
	for _, e := range events {
		if e.Type == EventModeDemoted {
			demotions++
		}
	}
	if demotions != 1 {
		t.Errorf("demotions: got %d, want 1", demotions)
	}

	// Further evaluations leave the mode alone.
	m.Tick(t0.Add(time.Second))
	m.ApplyUpdate(ControlUpdate{Rate: ptr(90.0)}, t0.Add(2*time.Second))
	if got := m.Session().Mode; got != ModeVVI {
		t.Errorf("mode oscillated to %v", got)
	}
}

func TestToggleLockAndReconcile(t *testing.T) {
	m := newConnectedMachine(t)
	m.ToggleLock(t0)
	_, cmds := m.Drain()
	if len(cmds) != 1 || cmds[0].Kind != CommandToggleLock || !cmds[0].Locked {
		t.Fatalf("expected toggle_lock expecting locked, got %+v", cmds)
	}

	// Hardware disagrees: it reports unlocked.
	m.ReconcileLock(false, t0.Add(50*time.Millisecond))
	if m.Session().Locked {
		t.Error("hardware lock state should win on mismatch")
	}
	events, _ := m.Drain()
	if !hasEvent(events, EventUnlocked) {
		t.Error("expected UNLOCKED event after correction")
	}

	m.ReconcileLock(false, t0.Add(60*time.Millisecond))
	if events, _ := m.Drain(); len(events) != 0 {
		t.Errorf("agreeing reconcile should be silent, got %d events", len(events))
	}
}

func TestSetSettingsField(t *testing.T) {
	m := newConnectedMachine(t)
	commitTo(t, m, ModeDDD, t0)
	m.Drain()

	if err := m.SetSettingsField(ScreenDDD, FieldVSensitivity, 4.5, t0); err != nil {
		t.Fatal(err)
	}
	if got := m.Session().VSensitivity; got != 4.5 {
		t.Errorf("v_sensitivity: got %v, want 4.5", got)
	}
	_, cmds := m.Drain()
	if len(cmds) != 1 || cmds[0].Kind != CommandSetValue || cmds[0].Control != ControlVSensitivity {
		t.Errorf("expected set_value with active control, got %+v", cmds)
	}

	if err := m.SetSettingsField(ScreenVVI, FieldASensitivity, 1, t0); !errors.Is(err, ErrUnknownField) {
		t.Errorf("VVI a_sensitivity: got %v, want ErrUnknownField", err)
	}
	if err := m.SetSettingsField(ScreenDDD, FieldRate, 1, t0); !errors.Is(err, ErrUnknownField) {
		t.Errorf("DDD rate: got %v, want ErrUnknownField", err)
	}

	m.ToggleLock(t0)
	if err := m.SetSettingsField(ScreenDDD, FieldASensitivity, 3, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("locked: got %v, want ErrLocked", err)
	}
}

func TestSettingsFieldAsyncOnlyFromZero(t *testing.T) {
	m := newTestMachine(t)
	m.SetSettingsField(ScreenDDD, FieldASensitivity, 0, t0)
	if got := m.Session().ASensitivity; got != 0 {
		t.Errorf("explicit 0: got %v, want ASYNC", got)
	}
	m.SetSettingsField(ScreenDDD, FieldASensitivity, 0.01, t0)
	if got := m.Session().ASensitivity; got != 0.4 {
		t.Errorf("0.01: got %v, want clamp to 0.4", got)
	}
}

func TestHandleButtonRoutes(t *testing.T) {
	m := newTestMachine(t)
	m.HandleButton(ButtonDown, t0)
	if got := m.Session().PendingMode; got != ModeVVI {
		t.Errorf("down: got %v, want VVI", got)
	}
	m.HandleButton(ButtonLeft, t0)
	if got := m.Session().Mode; got != ModeVVI {
		t.Errorf("left: got %v, want VVI committed", got)
	}
	m.ToggleLock(t0)
	if err := m.HandleButton(ButtonEmergency, t0); err != nil {
		t.Errorf("emergency while locked: %v", err)
	}
	if got := m.Session().Screen; got != ScreenDOO {
		t.Errorf("emergency: screen got %v, want DOO", got)
	}
	if err := m.HandleButton(Button("right"), t0); err == nil {
		t.Error("expected error for unknown button")
	}
}

func TestExecuteDispatch(t *testing.T) {
	m := newTestMachine(t)
	if err := m.Execute(Command{Op: OpSetControl, Field: FieldRate, Value: 90}, t0); err != nil {
		t.Fatal(err)
	}
	if err := m.Execute(Command{Op: OpNudge, Field: FieldRate, Direction: Up}, t0); err != nil {
		t.Fatal(err)
	}
	if got := m.Session().Rate; got != 92 {
		t.Errorf("rate after nudge: got %v, want 92", got)
	}
	if err := m.Execute(Command{Op: OpSlide, Field: FieldVSensitivity, Value: 100}, t0); err != nil {
		t.Fatal(err)
	}
	if got := m.Session().VSensitivity; got != 0 {
		t.Errorf("pinned slider: got %v, want 0", got)
	}
	if err := m.Execute(Command{Op: OpNavigate, Direction: "sideways"}, t0); err == nil {
		t.Error("expected error for bad direction")
	}
	if err := m.Execute(Command{Op: "bogus"}, t0); err == nil {
		t.Error("expected error for unknown op")
	}
	if err := m.Execute(Command{Op: OpToggleLock}, t0); err != nil {
		t.Fatal(err)
	}
	if err := m.Execute(Command{Op: OpNudge, Field: FieldRate, Direction: Up}, t0); !errors.Is(err, ErrLocked) {
		t.Errorf("nudge while locked: got %v, want ErrLocked", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
