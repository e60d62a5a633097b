package scenario

// State is a step in the lifecycle of a scenario.
type State int

const (
	Idle State = iota
	Cleaning
	Building
	Launching
	AwaitingReady
	Asserting
	TearingDown
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Cleaning:
		return "cleaning"
	case Building:
		return "building"
	case Launching:
		return "launching"
	case AwaitingReady:
		return "awaiting ready"
	case Asserting:
		return "asserting"
	case TearingDown:
		return "tearing down"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
