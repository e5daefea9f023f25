// Package state provides service lifecycle state management.
package state

// Phase represents the service lifecycle phase.
type Phase int

const (
	PhaseStarting     Phase = iota // Waiting for the gateway to become ready
	PhaseActive                    // Serving commands
	PhaseShuttingDown              // Tearing down players
	PhaseTerminated                // All players released
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseActive:
		return "active"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// AcceptingState represents whether play requests are being accepted.
type AcceptingState int

const (
	NotAccepting AcceptingState = iota // Not accepting requests
	Accepting                          // Accepting requests
)

// String returns the string representation of the accepting state.
func (a AcceptingState) String() string {
	switch a {
	case NotAccepting:
		return "not_accepting"
	case Accepting:
		return "accepting"
	default:
		return "unknown"
	}
}
