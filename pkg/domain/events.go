package domain

import (
	"context"
	"time"
)

// EventType categorizes engine lifecycle events.
type EventType string

const (
	EventStepEnter        EventType = "step_enter"
	EventStepLeave        EventType = "step_leave"
	EventCapabilityCall   EventType = "capability_call"
	EventCapabilityReturn EventType = "capability_return"
	EventTurnEnd          EventType = "turn_end"
)

// StepEvent represents entry to or exit from a step.
type StepEvent struct {
	Timestamp time.Time
	Type      EventType
	SessionID SessionID
	Step      string
	Version   uint64
}

// CapabilityEvent represents one external capability invocation.
type CapabilityEvent struct {
	Timestamp time.Time
	Type      EventType
	SessionID SessionID
	Step      string
	Kind      CapabilityKind
	CacheHit  bool
	Failure   FailureKind // empty on success
	Duration  time.Duration
}

// TurnEvent summarizes one completed (or failed) session turn.
type TurnEvent struct {
	Timestamp time.Time
	SessionID SessionID
	Entry     string
	Steps     int
	Duration  time.Duration
	Err       error
}

// LifecycleHooks defines optional callbacks for engine observability. Nil
// members are skipped; hooks must not block.
type LifecycleHooks struct {
	OnStepEnter        func(context.Context, *StepEvent)
	OnStepLeave        func(context.Context, *StepEvent)
	OnCapabilityCall   func(context.Context, *CapabilityEvent)
	OnCapabilityReturn func(context.Context, *CapabilityEvent)
	OnTurnEnd          func(context.Context, *TurnEvent)
}
