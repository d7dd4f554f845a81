package submit

import "fmt"

// State is the progress of one submission attempt.
type State int

const (
	Idle State = iota
	Submitting
	Approving
	Paying
	Submitted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Approving:
		return "approving"
	case Paying:
		return "paying"
	case Submitted:
		return "submitted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether a wallet interaction is in progress.
func (s State) Active() bool {
	return s == Submitting || s == Approving || s == Paying
}

// Idle moves to Paying only when resuming a stored approval, and to Failed
// when the entry checks reject the request.
var transitions = map[State][]State{
	Idle:       {Submitting, Approving, Paying, Failed},
	Submitting: {Submitted, Failed},
	Approving:  {Paying, Failed},
	Paying:     {Submitted, Failed},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
