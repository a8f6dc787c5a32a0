package saga

import "fmt"

// State is the lifecycle position of a run.
type State int

const (
	Idle State = iota
	Step1Submitted
	Step1Confirmed
	Step2Submitted
	Step2Confirmed
	Step3Submitted
	Step3Confirmed
	Aborted
)

// MaxSteps is the longest run the state machine can express.
const MaxSteps = 3

var stateNames = [...]string{
	Idle:           "Idle",
	Step1Submitted: "Step1Submitted",
	Step1Confirmed: "Step1Confirmed",
	Step2Submitted: "Step2Submitted",
	Step2Confirmed: "Step2Confirmed",
	Step3Submitted: "Step3Submitted",
	Step3Confirmed: "Step3Confirmed",
	Aborted:        "Aborted",
}

// String returns the state's name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// submitted returns the Submitted state for step index i (0-based).
func submitted(i int) State {
	return State(1 + 2*i)
}

// confirmed returns the Confirmed state for step index i (0-based).
func confirmed(i int) State {
	return State(2 + 2*i)
}

// Outcome is the terminal result of a run.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
)

// String returns the outcome's name.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "Pending"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
