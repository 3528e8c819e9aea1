// Package mqtt publishes panel session and lifecycle events to a broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

const (
	// Topic carries one message per session event.
	Topic = "pacemaker/panel/events"
	// TopicSystem carries daemon lifecycle messages and the last will.
	TopicSystem = "pacemaker/panel/system"
)

// Publisher sends events to the broker. A failed publish is returned to
// the caller and never panics.
type Publisher interface {
	Publish(event pacing.Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus is implemented by publishers that know their link state.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle message: STARTUP, SHUTDOWN, HEARTBEAT
// or the broker-side LWT.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // signal name on SHUTDOWN

	// RawPayload, when set, is sent as is. Lifecycle messages use it to
	// carry a full panel status document.
	RawPayload []byte
	Retained   bool
}

// Payload is the JSON body published on Topic.
type Payload struct {
	Panel PanelPayload `json:"panel"`
}

// PanelPayload describes one session event.
type PanelPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
	Locked    bool   `json:"locked"`
	Detail    string `json:"detail,omitempty"`
}

// SystemPayload is the JSON body for lifecycle messages without a status
// document, such as the last will.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner describes one lifecycle message.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatPayload encodes a session event.
func FormatPayload(event pacing.Event) ([]byte, error) {
	return json.Marshal(Payload{Panel: PanelPayload{
		Timestamp: stamp(event.Timestamp),
		Event:     string(event.Type),
		Mode:      event.Mode.String(),
		Locked:    event.Locked,
		Detail:    event.Detail,
	}})
}

// FormatSystemPayload encodes a lifecycle message, preferring RawPayload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: stamp(event.Timestamp),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
