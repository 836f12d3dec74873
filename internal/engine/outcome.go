// Package engine decides, for an accumulating case and a prioritised rule
// base, whether a rule is satisfied, which rules are still viable and which
// single piece of information to ask for next.
//
// Every condition evaluates to one of three outcomes.  Undetermined means the
// case lacks the data to decide and drives follow-up questions; Violated
// means the case contradicts the condition and removes its rule from
// consideration.
package engine

// Outcome is the result of evaluating one condition against a case.
type Outcome int

const (
	Undetermined Outcome = iota
	Satisfied
	Violated
)

func (o Outcome) String() string {
	switch o {
	case Satisfied:
		return "satisfied"
	case Violated:
		return "violated"
	default:
		return "undetermined"
	}
}

// fromBool maps an exact comparison result to an outcome.
func fromBool(ok bool) Outcome {
	if ok {
		return Satisfied
	}
	return Violated
}
