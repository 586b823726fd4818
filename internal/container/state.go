package container

// State is the position of one request in the dispatch state machine.
type State int

const (
	Received State = iota
	Routed
	Filtering
	Handling
	Responded
	Errored
)

func (s State) String() string {
	switch s {
	case Received:
		return "RECEIVED"
	case Routed:
		return "ROUTED"
	case Filtering:
		return "FILTERING"
	case Handling:
		return "HANDLING"
	case Responded:
		return "RESPONDED"
	case Errored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}
