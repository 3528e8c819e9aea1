package pacing

// Op is an operator command accepted by Machine.Execute.
type Op string

const (
	OpSetControl  Op = "set_control"
	OpNudge       Op = "nudge"
	OpSlide       Op = "slide"
	OpNavigate    Op = "navigate"
	OpCommit      Op = "commit"
	OpEmergency   Op = "emergency"
	OpToggleLock  Op = "toggle_lock"
	OpSetSettings Op = "set_settings"
)

// Command is an operator intent. Only the fields relevant to Op are read.
type Command struct {
	Op        Op
	Field     Field
	Screen    Screen
	Direction Direction
	Value     float64 // value, or slider position for OpSlide
}
