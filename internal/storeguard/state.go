package storeguard

type state int

const (
	// stateClosed - normal operation, calls pass through
	stateClosed state = iota

	// stateOpen - the store is presumed down, calls fail immediately
	stateOpen

	// stateHalfOpen - probing recovery, limited calls allowed
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
