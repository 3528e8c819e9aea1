package mqtt

import "log"

// outboxMsg is a serialized message held for replay after reconnection.
type outboxMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the most recent messages published while the broker was
// unreachable. When full, the oldest message is overwritten.
// Not safe for concurrent use; RealPublisher guards it.
type outbox struct {
	msgs    []outboxMsg
	next    int // slot the next push writes
	n       int
	dropped int // messages overwritten since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]outboxMsg, capacity)}
}

func (o *outbox) push(msg outboxMsg) {
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % len(o.msgs)
	if o.n < len(o.msgs) {
		o.n++
		return
	}
	if o.dropped == 0 {
		log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.msgs))
	}
	o.dropped++
}

// drain returns the held messages oldest first and empties the outbox.
func (o *outbox) drain() []outboxMsg {
	if o.n == 0 {
		return nil
	}
	out := make([]outboxMsg, 0, o.n)
	first := (o.next - o.n + len(o.msgs)) % len(o.msgs)
	for k := 0; k < o.n; k++ {
		out = append(out, o.msgs[(first+k)%len(o.msgs)])
	}
	if o.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were lost while offline", o.dropped)
	}
	o.next, o.n, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.n
}
