package provision

// State is the lifecycle of the provisioning transaction. Transitions only
// move forward.
type State uint8

const (
	StateUnsigned State = iota
	StateSigned
	StateSubmitted
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnsigned:
		return "unsigned"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateRejected
}
