package mqtt

import (
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// FakePublisher is an in-memory Publisher. Payloads are encoded exactly as
// the real publisher would encode them so tests can inspect the JSON.
type FakePublisher struct {
	Events   []pacing.Event
	Payloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Errors returned instead of recording, when set.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool // returned by IsConnected
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(event pacing.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	body, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, body)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	body, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, body)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// EventTypes lists the recorded session event types in publish order.
func (f *FakePublisher) EventTypes() []pacing.EventType {
	out := make([]pacing.EventType, 0, len(f.Events))
	for _, e := range f.Events {
		out = append(out, e.Type)
	}
	return out
}

// Reset forgets everything recorded, including configured errors.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
