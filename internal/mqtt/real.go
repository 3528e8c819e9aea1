package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// outboxCapacity bounds the messages held while the broker is unreachable.
const outboxCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are held in an outbox and replayed, in
// order, once paho reconnects.
type RealPublisher struct {
	client paho.Client

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned and keeps retrying in the background.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{outbox: newOutbox(outboxCapacity)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.replay() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until it is", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a session event to the MQTT broker.
func (p *RealPublisher) Publish(event pacing.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(outboxMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(outboxMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg outboxMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.publish(msg)
}

func (p *RealPublisher) publish(msg outboxMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// replay runs on paho's connect callback and flushes the outbox.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.outbox.drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	// Publish from a new goroutine; waiting on tokens inside the connect
	// handler blocks paho.
	go func() {
		for _, msg := range msgs {
			if err := p.publish(msg); err != nil {
				log.Printf("mqtt: replay failed: %v", err)
			}
		}
	}()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
