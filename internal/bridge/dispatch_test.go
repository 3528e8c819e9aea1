package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDispatcher() (*Dispatcher, *hardware.FakeClient, *clock) {
	fc := hardware.NewFakeClient(baseStatus())
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewDispatcher(fc, 500*time.Millisecond, clk.now), fc, clk
}

func setRate(v float64) pacing.HardwareCommand {
	return pacing.HardwareCommand{Kind: pacing.CommandSetValue, Field: pacing.FieldRate, Value: v}
}

func TestDispatcherLastWriteWins(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	d.Submit(setRate(90), pacing.HardwareCommand{Kind: pacing.CommandSetMode, Mode: pacing.ModeVVI}, setRate(100))
	if got := d.Pending(); got != 2 {
		t.Errorf("pending: got %d, want 2", got)
	}

	d.Flush(context.Background())
	calls := fc.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls: got %+v, want 2", calls)
	}
	if calls[0].Op != "value" || calls[0].Value != 100 {
		t.Errorf("first call: got %+v, want rate 100", calls[0])
	}
	if calls[1].Op != "mode" || calls[1].Mode != pacing.ModeVVI {
		t.Errorf("second call: got %+v, want mode VVI", calls[1])
	}
}

func TestDispatcherSuppressesDuplicatesWithinCooldown(t *testing.T) {
	d, fc, clk := newTestDispatcher()
	ctx := context.Background()

	d.Submit(setRate(90))
	d.Flush(ctx)
	clk.advance(200 * time.Millisecond)
	d.Submit(setRate(90))
	d.Flush(ctx)
	if got := len(fc.Calls()); got != 1 {
		t.Errorf("duplicate within cooldown: got %d calls, want 1", got)
	}

	d.Submit(setRate(91))
	d.Flush(ctx)
	if got := len(fc.Calls()); got != 2 {
		t.Errorf("new value: got %d calls, want 2", got)
	}

	clk.advance(time.Second)
	d.Submit(setRate(91))
	d.Flush(ctx)
	if got := len(fc.Calls()); got != 3 {
		t.Errorf("after cooldown: got %d calls, want 3", got)
	}
}

func TestDispatcherNeverCoalescesToggles(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	toggle := pacing.HardwareCommand{Kind: pacing.CommandToggleLock}
	d.Submit(toggle, toggle)
	d.Flush(context.Background())

	if got := len(fc.Calls()); got != 2 {
		t.Fatalf("toggles: got %d calls, want 2", got)
	}
	for _, want := range []bool{true, false} {
		select {
		case got := <-d.LockResults():
			if got != want {
				t.Errorf("lock result: got %v, want %v", got, want)
			}
		default:
			t.Fatal("missing lock result")
		}
	}
}

func TestDispatcherEnsureLocked(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	ensure := pacing.HardwareCommand{Kind: pacing.CommandEnsureLocked, Locked: true}

	fc.SetLocked(true)
	d.Submit(ensure)
	d.Flush(context.Background())
	if got := len(fc.Calls()); got != 0 {
		t.Errorf("already locked: got %d writes, want 0", got)
	}
	if got := <-d.LockResults(); !got {
		t.Error("expected locked result")
	}

	fc.SetLocked(false)
	d2 := NewDispatcher(fc, time.Second, time.Now)
	d2.Submit(ensure)
	d2.Flush(context.Background())
	calls := fc.Calls()
	if len(calls) != 1 || calls[0].Op != "toggle_lock" {
		t.Errorf("unlocked device: got %+v, want one toggle", calls)
	}
	if got := <-d2.LockResults(); !got {
		t.Error("expected locked result after toggle")
	}
}

func TestDispatcherBatchSendsModeFirst(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	d.Submit(pacing.HardwareCommand{Kind: pacing.CommandBatch, Batch: []pacing.HardwareCommand{
		setRate(80),
		{Kind: pacing.CommandSetMode, Mode: pacing.ModeDOO},
		{Kind: pacing.CommandSetValue, Field: pacing.FieldAOutput, Value: 20},
		{Kind: pacing.CommandSetValue, Field: pacing.FieldVOutput, Value: 25},
	}})
	d.Flush(context.Background())

	calls := fc.Calls()
	if len(calls) != 4 {
		t.Fatalf("batch: got %d calls, want 4", len(calls))
	}
	if calls[0].Op != "mode" || calls[0].Mode != pacing.ModeDOO {
		t.Errorf("first batch call: got %+v, want mode DOO", calls[0])
	}
	fields := map[pacing.Field]float64{}
	for _, c := range calls[1:] {
		fields[c.Field] = c.Value
	}
	if fields[pacing.FieldRate] != 80 || fields[pacing.FieldAOutput] != 20 || fields[pacing.FieldVOutput] != 25 {
		t.Errorf("batch values: got %v", fields)
	}
}

func TestDispatcherContinuesAfterFailure(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	fc.SetWriteError(hardware.ErrDeviceLocked)
	d.Submit(setRate(90), pacing.HardwareCommand{Kind: pacing.CommandSetMode, Mode: pacing.ModeAAI})
	d.Flush(context.Background())
	if got := len(fc.Calls()); got != 2 {
		t.Errorf("calls: got %d, want 2", got)
	}

	// A failed write is not remembered, so an identical retry goes out.
	fc.SetWriteError(nil)
	d.Submit(setRate(90))
	d.Flush(context.Background())
	if got := len(fc.Calls()); got != 3 {
		t.Errorf("retry: got %d calls, want 3", got)
	}
}

func TestDispatcherRun(t *testing.T) {
	d, fc, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Submit(setRate(120))
	deadline := time.Now().Add(time.Second)
	for len(fc.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not execute the command")
		}
		time.Sleep(time.Millisecond)
	}
}
