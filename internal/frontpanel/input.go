package frontpanel

import "time"

// Quadrature transitions indexed by prev<<2 | cur, where a state is A<<1 | B.
// Clockwise runs 00 -> 10 -> 11 -> 01 -> 00. Entries of 0 with differing
// states are double jumps: a missed sample.
var quadTable = [16]int8{
	0b0000: 0, 0b0001: -1, 0b0010: +1, 0b0011: 0,
	0b0100: +1, 0b0101: 0, 0b0110: 0, 0b0111: -1,
	0b1000: -1, 0b1001: 0, 0b1010: 0, 0b1011: +1,
	0b1100: 0, 0b1101: +1, 0b1110: -1, 0b1111: 0,
}

// stepsPerDetent is the number of quadrature transitions in one click.
const stepsPerDetent = 4

// quadDecoder turns encoder channel samples into detents.
type quadDecoder struct {
	prev uint8
	acc  int
}

func quadState(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// feed consumes one sample. It returns +1 or -1 when a full detent has
// been turned, and invalid when a transition was skipped.
func (q *quadDecoder) feed(a, b bool) (detent int, invalid bool) {
	cur := quadState(a, b)
	if cur == q.prev {
		return 0, false
	}
	delta := quadTable[q.prev<<2|cur]
	q.prev = cur
	if delta == 0 {
		q.acc = 0
		return 0, true
	}
	q.acc += int(delta)
	switch {
	case q.acc >= stepsPerDetent:
		q.acc = 0
		return 1, false
	case q.acc <= -stepsPerDetent:
		q.acc = 0
		return -1, false
	}
	if cur == 0 {
		// Back at rest without a full cycle: a bounce.
		q.acc = 0
	}
	return 0, false
}

// debouncer tracks one button line. A level must hold for the debounce
// window before it becomes stable, and the first stable level is taken as
// the baseline without reporting a press.
type debouncer struct {
	stable       bool
	pending      bool
	hasPending   bool
	pendingSince time.Time
	baselined    bool
}

// feed takes a sample and reports whether the button was just pressed.
func (d *debouncer) feed(held bool, now time.Time, window time.Duration) bool {
	if !d.baselined {
		if !d.hasPending || d.pending != held {
			d.pending = held
			d.hasPending = true
			d.pendingSince = now
			return false
		}
		if now.Sub(d.pendingSince) >= window {
			d.stable = held
			d.baselined = true
			d.hasPending = false
		}
		return false
	}

	if held == d.stable {
		d.hasPending = false
		return false
	}
	if !d.hasPending || d.pending != held {
		d.pending = held
		d.hasPending = true
		d.pendingSince = now
		return false
	}
	if now.Sub(d.pendingSince) >= window {
		d.stable = held
		d.hasPending = false
		return held
	}
	return false
}
