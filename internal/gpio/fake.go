package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted front-panel levels.
type FakeReader struct {
	mu sync.Mutex

	// samples are returned in order; the last one repeats once exhausted.
	samples []Levels
	index   int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read().
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...Levels) *FakeReader {
	return &FakeReader{samples: samples}
}

// Push appends samples to the script.
func (f *FakeReader) Push(samples ...Levels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, samples...)
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Levels{}, f.ReadError
	}
	if len(f.samples) == 0 {
		return Levels{}, errors.New("no samples configured")
	}

	sample := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// quadrature is the clockwise Gray code cycle of (A, B), starting and
// ending at rest with both channels low.
var quadrature = [4][2]bool{{false, false}, {true, false}, {true, true}, {false, true}}

// Turn returns the samples of an encoder turned by detents: positive is
// clockwise. Every detent is one full quadrature cycle and the sequence
// ends at rest.
func Turn(detents int) []Levels {
	n := detents
	if n < 0 {
		n = -n
	}
	var out []Levels
	for i := 0; i < n; i++ {
		for j := 1; j <= 4; j++ {
			k := j % 4
			if detents < 0 {
				k = (4 - j) % 4
			}
			out = append(out, Levels{EncoderA: quadrature[k][0], EncoderB: quadrature[k][1]})
		}
	}
	return out
}
