package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

func TestFormatPayload(t *testing.T) {
	event := pacing.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      pacing.EventModeDemoted,
		Mode:      pacing.ModeAAI,
		Locked:    false,
		Detail:    "ventricular output is 0",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"panel":{"timestamp":"2026-02-02T22:18:12Z","event":"MODE_DEMOTED","mode":"AAI","locked":false,"detail":"ventricular output is 0"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadOmitsEmptyDetail(t *testing.T) {
	payload, err := FormatPayload(pacing.Event{
		Timestamp: time.Now(),
		Type:      pacing.EventLocked,
		Mode:      pacing.ModeDDD,
		Locked:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["panel"]["detail"]; exists {
		t.Error("detail should be omitted when empty")
	}
	if parsed["panel"]["locked"] != true {
		t.Errorf("locked: got %v, want true", parsed["panel"]["locked"])
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := pacing.Event{
		Timestamp: time.Date(2026, 2, 3, 0, 30, 0, 0, loc),
		Type:      pacing.EventEmergencyOn,
		Mode:      pacing.ModeDOO,
	}

	payload, _ := FormatPayload(event)
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Panel.Timestamp != "2026-02-02T22:30:00Z" {
		t.Errorf("timestamp: got %s, want UTC", parsed.Panel.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "pacemaker/panel/events" {
		t.Errorf("Topic: got %s", Topic)
	}
	if TopicSystem != "pacemaker/panel/system" {
		t.Errorf("TopicSystem: got %s", TopicSystem)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("got %s, want raw payload", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	for _, typ := range []pacing.EventType{pacing.EventUnlocked, pacing.EventModeCommitted, pacing.EventAutoLocked} {
		if err := f.Publish(pacing.Event{Timestamp: time.Now(), Type: typ}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := f.EventTypes()
	want := []pacing.EventType{pacing.EventUnlocked, pacing.EventModeCommitted, pacing.EventAutoLocked}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if len(f.Payloads) != 3 {
		t.Errorf("expected 3 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated error")

	if err := f.Publish(pacing.Event{Type: pacing.EventLocked}); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("expected nothing recorded on error")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	if len(f.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(f.SystemEvents))
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Retained {
		t.Error("second event should have Retained=false")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(pacing.Event{Type: pacing.EventLocked})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Events) != 0 || len(f.SystemEvents) != 0 || f.Closed || f.Connected {
		t.Errorf("reset left state behind: %+v", f)
	}
	if err := f.Publish(pacing.Event{Type: pacing.EventUnlocked}); err != nil {
		t.Errorf("publish after reset: %v", err)
	}
}
