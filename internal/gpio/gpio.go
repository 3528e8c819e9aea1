// Package gpio reads the pacemaker front panel lines with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing and simulation without hardware.
package gpio

// Levels is one sample of every front-panel line, in logical form: a button
// is true while held down, encoder channels are true while high.
type Levels struct {
	EncoderA  bool
	EncoderB  bool
	Up        bool
	Down      bool
	Left      bool
	Emergency bool
}

// Reader reads the front-panel lines.
type Reader interface {
	// Read returns the current logical levels.
	Read() (Levels, error)

	// Close releases GPIO resources.
	Close() error
}

// Pins maps each line to a BCM offset on the chip.
type Pins struct {
	EncoderA  int
	EncoderB  int
	Up        int
	Down      int
	Left      int
	Emergency int
}

// DefaultPins is the wiring of the reference front panel.
var DefaultPins = Pins{
	EncoderA:  17,
	EncoderB:  27,
	Up:        5,
	Down:      6,
	Left:      13,
	Emergency: 19,
}

// offsets returns the line offsets in Levels field order.
func (p Pins) offsets() []int {
	return []int{p.EncoderA, p.EncoderB, p.Up, p.Down, p.Left, p.Emergency}
}
