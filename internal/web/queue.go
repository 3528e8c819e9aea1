package web

import (
	"context"
	"errors"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// ErrUnavailable is returned when the event loop does not accept or answer
// a command before the request context ends.
var ErrUnavailable = errors.New("panel unavailable")

// Commander runs an operator command against the session and returns the
// machine's verdict.
type Commander interface {
	Do(ctx context.Context, cmd pacing.Command) error
}

// Request is a command waiting for the event loop.
type Request struct {
	Cmd   pacing.Command
	reply chan error
}

// Reply reports the outcome to the waiting handler. It must be called
// exactly once and never blocks.
func (r Request) Reply(err error) {
	r.reply <- err
}

// Queue hands commands from HTTP handlers to the event loop, which is the
// only goroutine allowed to touch the session.
type Queue struct {
	ch chan Request
}

// NewQueue creates a Queue holding up to size unclaimed requests.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Request, size)}
}

// Requests is read by the event loop.
func (q *Queue) Requests() <-chan Request {
	return q.ch
}

// Do submits cmd and waits for the loop's reply.
func (q *Queue) Do(ctx context.Context, cmd pacing.Command) error {
	req := Request{Cmd: cmd, reply: make(chan error, 1)}
	select {
	case q.ch <- req:
	case <-ctx.Done():
		return ErrUnavailable
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ErrUnavailable
	}
}
