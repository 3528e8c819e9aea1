package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason,omitempty"`

	Mode             string        `json:"mode"`
	ModeIndex        int           `json:"mode_index"`
	PendingMode      string        `json:"pending_mode"`
	PendingModeIndex int           `json:"pending_mode_index"`
	Modes            []string      `json:"modes"`
	Locked           bool          `json:"locked"`
	ControlsLocked   bool          `json:"controls_locked"`
	Screen           string        `json:"screen"`
	SelectedDDDField string        `json:"selected_ddd_field"`
	ActiveControl    string        `json:"active_control"`
	Controls         []ControlJSON `json:"controls"`
	Notices          []NoticeJSON  `json:"notices"`
	AutoLockSeconds  int64         `json:"auto_lock_seconds"`
	Battery          int           `json:"battery"`

	Hardware      HardwareJSON   `json:"hardware"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        map[string]int `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// ControlJSON describes one numeric control as the panel renders it.
type ControlJSON struct {
	Field    string  `json:"field"`
	Title    string  `json:"title"`
	Unit     string  `json:"unit"`
	Value    float64 `json:"value"`
	Label    string  `json:"label"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Step     float64 `json:"step"`
	Position float64 `json:"position"`
	Inverted bool    `json:"inverted"`
}

// NoticeJSON is a transient message for the toast area.
type NoticeJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HardwareJSON reports the adapter link.
type HardwareJSON struct {
	Connected   bool            `json:"connected"`
	URL         string          `json:"url"`
	LastSeen    string          `json:"last_seen,omitempty"`
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HTTPAddr     string   `json:"http_addr"`
	HardwareURLs []string `json:"hardware_urls"`
	PollMs       int64    `json:"poll_ms"`
	RetryMs      int64    `json:"retry_ms"`
	CooldownMs   int64    `json:"cooldown_ms"`
	AutoLockMs   int64    `json:"auto_lock_ms"`
	WatchdogMs   int64    `json:"watchdog_ms"`
	HeartbeatMs  int64    `json:"heartbeat_ms"`
	Broker       string   `json:"broker"`
}

func buildControls(s pacing.Session) []ControlJSON {
	out := make([]ControlJSON, 0, len(pacing.Fields))
	for _, f := range pacing.Fields {
		r, _ := pacing.RangeFor(f)
		c := pacing.Control{
			Title:    f.Title(),
			Unit:     f.Unit(),
			Field:    f,
			Range:    r,
			Value:    s.Value(f),
			Inverted: f.IsSensitivity(),
		}
		out = append(out, ControlJSON{
			Field:    string(f),
			Title:    c.Title,
			Unit:     c.Unit,
			Value:    c.Value,
			Label:    c.Label(),
			Min:      r.Min,
			Max:      r.Max,
			Step:     c.Step(),
			Position: c.Position(),
			Inverted: c.Inverted,
		})
	}
	return out
}

func modeNames() []string {
	names := make([]string, pacing.ModeCount)
	for i := range names {
		m, _ := pacing.ModeFromIndex(i)
		names[i] = m.String()
	}
	return names
}

// BuildInner converts a snapshot into its presentation form.
func BuildInner(snap Snapshot) StatusInner {
	sess := snap.Session

	notices := make([]NoticeJSON, 0, len(sess.Notices))
	for _, n := range sess.Notices {
		notices = append(notices, NoticeJSON{Kind: string(n.Kind), Message: n.Message})
	}

	counts := make(map[string]int, len(snap.Counts))
	for k, v := range snap.Counts {
		counts[string(k)] = v
	}

	hw := HardwareJSON{
		Connected:   snap.Hardware.Connected,
		URL:         snap.Hardware.BaseURL,
		Diagnostics: snap.Hardware.Status.Hardware,
	}
	if !snap.Hardware.LastSeen.IsZero() {
		hw.LastSeen = snap.Hardware.LastSeen.UTC().Format(time.RFC3339)
	}

	return StatusInner{
		Mode:             sess.Mode.String(),
		ModeIndex:        sess.Mode.Index(),
		PendingMode:      sess.PendingMode.String(),
		PendingModeIndex: sess.PendingMode.Index(),
		Modes:            modeNames(),
		Locked:           sess.Locked,
		ControlsLocked:   sess.ControlsLocked,
		Screen:           string(sess.Screen),
		SelectedDDDField: string(sess.SelectedDDDField),
		ActiveControl:    string(sess.ActiveControl),
		Controls:         buildControls(sess.Session),
		Notices:          notices,
		AutoLockSeconds:  int64(sess.AutoLockIn.Round(time.Second).Seconds()),
		Battery:          snap.Battery(),
		Hardware:         hw,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:           counts,
		Config: ConfigJSON{
			HTTPAddr:     snap.Config.HTTPAddr,
			HardwareURLs: snap.Config.HardwareURLs,
			PollMs:       snap.Config.PollMs,
			RetryMs:      snap.Config.RetryMs,
			CooldownMs:   snap.Config.CooldownMs,
			AutoLockMs:   snap.Config.AutoLockMs,
			WatchdogMs:   snap.Config.WatchdogMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: BuildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := BuildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
