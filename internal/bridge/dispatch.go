package bridge

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Dispatcher executes hardware writes on its own goroutine so the event
// loop never waits on the adapter. Failures are logged and dropped.
//
// Pending commands with the same key collapse to the latest one, and a
// command identical to one sent within the cooldown is skipped.
type Dispatcher struct {
	client   hardware.Client
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	pending  []pacing.HardwareCommand
	lastSent map[string]sentCommand

	wake  chan struct{}
	locks chan bool
}

type sentCommand struct {
	cmd pacing.HardwareCommand
	at  time.Time
}

// NewDispatcher creates a Dispatcher writing to client.
func NewDispatcher(client hardware.Client, cooldown time.Duration, now func() time.Time) *Dispatcher {
	return &Dispatcher{
		client:   client,
		cooldown: cooldown,
		now:      now,
		lastSent: make(map[string]sentCommand),
		wake:     make(chan struct{}, 1),
		locks:    make(chan bool, 16),
	}
}

// LockResults delivers the device lock state after each lock round trip.
func (d *Dispatcher) LockResults() <-chan bool {
	return d.locks
}

// Submit queues commands without blocking.
func (d *Dispatcher) Submit(cmds ...pacing.HardwareCommand) {
	if len(cmds) == 0 {
		return
	}
	d.mu.Lock()
	for _, cmd := range cmds {
		d.enqueue(cmd)
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// enqueue replaces a pending command with the same key in place, so the
// latest value goes out at the position of the first one. Caller holds mu.
func (d *Dispatcher) enqueue(cmd pacing.HardwareCommand) {
	if key := cmd.Key(); key != "" {
		for i := range d.pending {
			if d.pending[i].Key() == key {
				d.pending[i] = cmd
				return
			}
		}
	}
	d.pending = append(d.pending, cmd)
}

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run executes queued commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			d.Flush(ctx)
		}
	}
}

// Flush executes every queued command in order and returns once they have
// all completed.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.mu.Lock()
	cmds := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, cmd := range cmds {
		if ctx.Err() != nil {
			return
		}
		if d.duplicate(cmd) {
			continue
		}
		if err := d.execute(ctx, cmd); err != nil {
			logFailure(cmd, err)
			continue
		}
		if key := cmd.Key(); key != "" {
			d.mu.Lock()
			d.lastSent[key] = sentCommand{cmd: cmd, at: d.now()}
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) duplicate(cmd pacing.HardwareCommand) bool {
	key := cmd.Key()
	if key == "" {
		return false
	}
	d.mu.Lock()
	prev, ok := d.lastSent[key]
	d.mu.Unlock()
	return ok && sameCommand(prev.cmd, cmd) && d.now().Sub(prev.at) < d.cooldown
}

func sameCommand(a, b pacing.HardwareCommand) bool {
	return a.Kind == b.Kind && a.Field == b.Field && a.Value == b.Value &&
		a.Mode == b.Mode && a.Control == b.Control && a.Locked == b.Locked
}

func (d *Dispatcher) execute(ctx context.Context, cmd pacing.HardwareCommand) error {
	switch cmd.Kind {
	case pacing.CommandSetValue:
		return d.client.SetValue(ctx, cmd.Field, cmd.Value, cmd.Control)
	case pacing.CommandSetMode:
		return d.client.SetMode(ctx, cmd.Mode)
	case pacing.CommandActiveControl:
		return d.client.SetActiveControl(ctx, cmd.Control)
	case pacing.CommandToggleLock:
		locked, err := d.client.ToggleLock(ctx)
		if err != nil {
			return err
		}
		d.reportLock(locked)
		return nil
	case pacing.CommandEnsureLocked:
		locked, err := d.client.Lock(ctx)
		if err != nil {
			return err
		}
		if !locked {
			if locked, err = d.client.ToggleLock(ctx); err != nil {
				return err
			}
		}
		d.reportLock(locked)
		return nil
	case pacing.CommandBatch:
		return d.executeBatch(ctx, cmd.Batch)
	}
	return errors.New("unknown command kind " + string(cmd.Kind))
}

// executeBatch sends mode changes first, since a locked device accepts
// writes only once it is in DOO, then the remaining writes concurrently.
func (d *Dispatcher) executeBatch(ctx context.Context, batch []pacing.HardwareCommand) error {
	var rest []pacing.HardwareCommand
	for _, cmd := range batch {
		if cmd.Kind != pacing.CommandSetMode {
			rest = append(rest, cmd)
			continue
		}
		if err := d.execute(ctx, cmd); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, cmd := range rest {
		cmd := cmd
		g.Go(func() error {
			return d.execute(gctx, cmd)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) reportLock(locked bool) {
	select {
	case d.locks <- locked:
	default:
		log.Printf("dispatch: lock result dropped, loop not reading")
	}
}

func logFailure(cmd pacing.HardwareCommand, err error) {
	if errors.Is(err, hardware.ErrDeviceLocked) {
		log.Printf("dispatch: %s rejected, device locked", describe(cmd))
		return
	}
	log.Printf("dispatch: %s failed: %v", describe(cmd), err)
}

func describe(cmd pacing.HardwareCommand) string {
	switch cmd.Kind {
	case pacing.CommandSetValue:
		return "set " + string(cmd.Field)
	case pacing.CommandSetMode:
		return "set mode " + cmd.Mode.String()
	case pacing.CommandActiveControl:
		return "active control " + string(cmd.Control)
	}
	return string(cmd.Kind)
}
