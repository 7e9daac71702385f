package domain

// DirectiveKind tags the variants of a transition result. Modeling the
// step graph as a closed tagged variant (next | fan-out | terminal) keeps
// the engine loop a verifiable state machine.
type DirectiveKind string

const (
	DirectiveNext     DirectiveKind = "next"
	DirectiveFanOut   DirectiveKind = "fan_out"
	DirectiveTerminal DirectiveKind = "terminal"
)

// SelectionPolicy names the strategy for choosing among fan-out candidates.
type SelectionPolicy string

const (
	// PolicyFirstSuccess picks the first candidate, in declared priority
	// order, whose predicate reports viable.
	PolicyFirstSuccess SelectionPolicy = "first-success"

	// PolicyHighestConfidence probes every candidate and picks the viable
	// one with the highest confidence; declared order breaks ties.
	PolicyHighestConfidence SelectionPolicy = "highest-confidence"
)

// Candidate is one branch of a fan-out directive.
type Candidate struct {
	Step string

	// Score inspects the post-step snapshot and reports whether this branch
	// is viable and with what confidence.
	Score func(snap *Snapshot) (viable bool, confidence float64)
}

// Directive is the tagged transition result of a step.
type Directive struct {
	Kind       DirectiveKind
	NextStep   string // set when Kind == DirectiveNext
	Candidates []Candidate
	Policy     SelectionPolicy
}

// Next directs execution to a single named step.
func Next(step string) Directive {
	return Directive{Kind: DirectiveNext, NextStep: step}
}

// Terminal ends the turn; the current snapshot is the final one.
func Terminal() Directive {
	return Directive{Kind: DirectiveTerminal}
}

// FanOut directs execution to the candidate selected by policy.
func FanOut(policy SelectionPolicy, candidates ...Candidate) Directive {
	return Directive{Kind: DirectiveFanOut, Policy: policy, Candidates: candidates}
}
