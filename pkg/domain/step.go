package domain

import "context"

// CapabilityKind identifies an external dependency class a step may require.
type CapabilityKind string

const (
	CapabilityGateway CapabilityKind = "data-gateway"
	CapabilityModel   CapabilityKind = "language-model"
)

// GatewayOp selects the data-gateway operation to perform.
type GatewayOp string

const (
	GatewayAccounts     GatewayOp = "accounts"
	GatewayTransactions GatewayOp = "transactions"
)

// GatewayRequest describes one data-aggregator call.
type GatewayRequest struct {
	Op    GatewayOp   `json:"op"`
	Auth  AuthContext `json:"auth"`
	Range DateRange   `json:"range,omitempty"`
}

// ModelRequest describes one language-model completion call.
type ModelRequest struct {
	System  string    `json:"system,omitempty"`
	Prompt  string    `json:"prompt"`
	Context []Message `json:"context,omitempty"`
}

// CapabilityRequest is one external call a step needs before its transition
// function can run. Name keys the result within the step; the request body
// (not the session) determines the cache key, enabling cross-session reuse
// of identical calls.
type CapabilityRequest struct {
	Name    string          `json:"name"`
	Kind    CapabilityKind  `json:"kind"`
	Gateway *GatewayRequest `json:"gateway,omitempty"`
	Model   *ModelRequest   `json:"model,omitempty"`
}

// CallResult is the outcome of one capability request as seen by a
// transition function. Exactly one of Value or Failure is set: capability
// failures after exhausted retries arrive here as values, never as errors
// crossing the engine boundary.
type CallResult struct {
	Value   any
	Failure *CapabilityError
	Cached  bool
}

// OK reports whether the call produced a usable value.
func (r CallResult) OK() bool { return r.Failure == nil }

// CallResults maps request names to their outcomes.
type CallResults map[string]CallResult

// Failed reports whether any joined capability call failed.
func (rs CallResults) Failed() bool {
	for _, r := range rs {
		if r.Failure != nil {
			return true
		}
	}
	return false
}

// PrepareFunc builds the capability requests for a step from the current
// snapshot. A nil PrepareFunc means the step needs no external calls.
type PrepareFunc func(snap *Snapshot) ([]CapabilityRequest, error)

// StepFunc is a step's transition function: a pure function of (state,
// call results) producing a state delta and the next-step directive.
type StepFunc func(ctx context.Context, snap *Snapshot, calls CallResults) (Delta, Directive, error)

// StepDefinition is a named unit of work in the orchestration graph.
// Definitions are process-wide and immutable after registration at startup.
type StepDefinition struct {
	// Name uniquely keys the step in the registry.
	Name string

	// Inputs and Outputs declare the snapshot variables the step reads and
	// writes. Informational: used for graph introspection and validation.
	Inputs  []string
	Outputs []string

	// Capabilities declares which external dependency classes the step may
	// request. Requests outside this set are rejected by the engine.
	Capabilities []CapabilityKind

	// Successors lists the step names this step may direct to, for static
	// graph validation and rendering. Terminal steps leave it empty.
	Successors []string

	// Prepare builds the external calls; Run is the transition function.
	Prepare PrepareFunc
	Run     StepFunc
}
