//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the front panel from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	lines *gpiocdev.Lines
	vals  []int
}

// NewRealReader requests every front-panel line on chip as an input.
func NewRealReader(chip string, pins Pins) (*RealReader, error) {
	offsets := pins.offsets()

	// Buttons switch to ground, so lines idle high with the pull-up.
	lines, err := gpiocdev.RequestLines(chip, offsets, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request front panel lines %v on %s: %w", offsets, chip, err)
	}
	return &RealReader{lines: lines, vals: make([]int, len(offsets))}, nil
}

// Read returns the logical levels. Buttons are active low.
func (r *RealReader) Read() (Levels, error) {
	if err := r.lines.Values(r.vals); err != nil {
		return Levels{}, fmt.Errorf("read front panel lines: %w", err)
	}
	return Levels{
		EncoderA:  r.vals[0] == 1,
		EncoderB:  r.vals[1] == 1,
		Up:        r.vals[2] == 0,
		Down:      r.vals[3] == 0,
		Left:      r.vals[4] == 0,
		Emergency: r.vals[5] == 0,
	}, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so the panel does not hold pins during early boot.
func (r *RealReader) Close() error {
	if r.lines == nil {
		return nil
	}
	var errs []error
	if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
	}
	if err := r.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lines: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
