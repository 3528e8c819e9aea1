package hardware

import (
	"context"
	"sync"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Call is one recorded write to a FakeClient.
type Call struct {
	Op      string // "value", "mode", "active_control", "toggle_lock"
	Field   pacing.Field
	Value   float64
	Control pacing.ActiveControl
	Mode    pacing.Mode
}

// FakeClient is an in-memory Client for tests. It is safe for concurrent use
// because the dispatcher calls it from its own goroutines.
type FakeClient struct {
	mu sync.Mutex

	statuses  []Status
	healthErr error
	calls     []Call
	locked    bool
	writeErr  error
}

// NewFakeClient creates a FakeClient whose health endpoint reports st until
// scripted otherwise.
func NewFakeClient(st Status) *FakeClient {
	return &FakeClient{statuses: []Status{st}}
}

// Script queues health responses. Each Health call consumes one; the last
// one repeats.
func (f *FakeClient) Script(statuses ...Status) {
	f.mu.Lock()
	f.statuses = append(f.statuses, statuses...)
	f.mu.Unlock()
}

// SetHealthError makes Health fail with err (nil restores it).
func (f *FakeClient) SetHealthError(err error) {
	f.mu.Lock()
	f.healthErr = err
	f.mu.Unlock()
}

// SetWriteError makes every write fail with err (nil restores them).
func (f *FakeClient) SetWriteError(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// SetLocked sets the device lock state.
func (f *FakeClient) SetLocked(locked bool) {
	f.mu.Lock()
	f.locked = locked
	f.mu.Unlock()
}

// Calls returns a copy of the recorded writes.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Health returns the next scripted status.
func (f *FakeClient) Health(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return Status{}, f.healthErr
	}
	if len(f.statuses) == 0 {
		return Status{Status: "ok"}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

func (f *FakeClient) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.writeErr
}

// SetValue records the write.
func (f *FakeClient) SetValue(ctx context.Context, field pacing.Field, value float64, control pacing.ActiveControl) error {
	return f.record(Call{Op: "value", Field: field, Value: value, Control: control})
}

// SetMode records the write.
func (f *FakeClient) SetMode(ctx context.Context, mode pacing.Mode) error {
	return f.record(Call{Op: "mode", Mode: mode})
}

// SetActiveControl records the write.
func (f *FakeClient) SetActiveControl(ctx context.Context, control pacing.ActiveControl) error {
	return f.record(Call{Op: "active_control", Control: control})
}

// ToggleLock flips the fake device lock.
func (f *FakeClient) ToggleLock(ctx context.Context) (bool, error) {
	if err := f.record(Call{Op: "toggle_lock"}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = !f.locked
	return f.locked, nil
}

// Lock reads the fake device lock.
func (f *FakeClient) Lock(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked, nil
}
