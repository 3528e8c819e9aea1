package pacing

// Control is a bounded numeric control for one session field. Changes are
// routed through the lock gate before reaching OnChange.
type Control struct {
	Title string
	Unit  string
	Field Field
	Range Range
	Value float64

	// Inverted marks sensitivity controls, whose slider runs from least to
	// most sensitive and ends in the ASYNC detent.
	Inverted bool

	OnChange    func(float64) error
	IsLocked    func() bool
	OnLockError func()
}

// HandleChange clamps v and forwards it to OnChange. A locked control
// reports the lock and discards v.
func (c Control) HandleChange(v float64) error {
	if c.IsLocked != nil && c.IsLocked() {
		if c.OnLockError != nil {
			c.OnLockError()
		}
		return ErrLocked
	}
	if c.Inverted && v == Async {
		return c.change(Async)
	}
	return c.change(c.Range.Clamp(v))
}

func (c Control) change(v float64) error {
	if c.OnChange == nil {
		return nil
	}
	return c.OnChange(v)
}

// Step returns the current nudge step.
func (c Control) Step() float64 {
	return StepFor(c.Field, c.Value)
}

// Nudge moves the value one step. Nudging never reaches ASYNC; a nudge up
// from ASYNC lands on the range minimum.
func (c Control) Nudge(dir Direction) error {
	if c.Inverted && c.Value == Async {
		if dir == Up {
			return c.HandleChange(c.Range.Min)
		}
		return c.HandleChange(Async)
	}
	step := c.Step()
	if dir == Down {
		step = -step
	}
	return c.HandleChange(round2(c.Value + step))
}

// Slide applies an inverted slider position. It is only meaningful for
// sensitivity controls; others treat p as the value directly.
func (c Control) Slide(p float64) error {
	if !c.Inverted {
		return c.HandleChange(p)
	}
	return c.HandleChange(SliderToValue(p, c.Range))
}

// Position returns the slider position for the current value.
func (c Control) Position() float64 {
	if !c.Inverted {
		return c.Value
	}
	return ValueToSlider(c.Value, c.Range)
}

// Label renders the current value with its unit.
func (c Control) Label() string {
	if c.Inverted {
		return SensitivityLabel(c.Value)
	}
	return formatValue(c.Value) + " " + c.Unit
}
