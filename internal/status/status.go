// Package status provides a thread-safe view of the panel for HTTP handlers,
// the WebSocket stream and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Config contains daemon configuration for display.
type Config struct {
	HTTPAddr     string
	HardwareURLs []string
	PollMs       int64
	RetryMs      int64
	CooldownMs   int64
	AutoLockMs   int64
	WatchdogMs   int64
	HeartbeatMs  int64
	Broker       string
}

// Hardware is the last known state of the adapter link.
type Hardware struct {
	Connected bool
	BaseURL   string
	LastSeen  time.Time
	Status    hardware.Status
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; the Counts map is copied on read.
type Snapshot struct {
	Session       pacing.Snapshot
	Hardware      Hardware
	Counts        map[pacing.EventType]int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Battery is the simulated battery level in percent. It drains one percent
// every ten minutes of uptime and never drops below 5.
func (s Snapshot) Battery() int {
	level := 100 - int(s.Uptime()/(10*time.Minute))
	if level < 5 {
		return 5
	}
	return level
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts:    make(map[pacing.EventType]int),
		},
		now:  time.Now,
		subs: make(map[chan struct{}]struct{}),
	}
}

// Update stores the latest session snapshot.
// Called from the event loop after every state change and on every tick.
func (t *Tracker) Update(s pacing.Snapshot) {
	t.mu.Lock()
	t.snap.Session = s
	t.mu.Unlock()
	t.notify()
}

// SetHardware records the adapter link state and its latest raw status.
func (t *Tracker) SetHardware(h Hardware) {
	t.mu.Lock()
	t.snap.Hardware = h
	t.mu.Unlock()
	t.notify()
}

// RecordEvents adds published events to the per-type counters.
func (t *Tracker) RecordEvents(events []pacing.Event) {
	if len(events) == 0 {
		return
	}
	t.mu.Lock()
	for _, e := range events {
		t.snap.Counts[e.Type]++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = make(map[pacing.EventType]int, len(t.snap.Counts))
	for k, v := range t.snap.Counts {
		s.Counts[k] = v
	}
	s.Session.Notices = append([]pacing.Notice(nil), t.snap.Session.Notices...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

// Subscribe returns a channel that receives a signal after each update.
// Signals coalesce: a slow reader sees one pending signal, not a backlog.
// The returned function unsubscribes.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()
	return ch, func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
