/*
Package domain contains the core domain models for the PennyWise agent engine.

It defines the fundamental entities of the orchestration state machine:
immutable state snapshots, step definitions and their transition directives,
external-call records, and the canonical financial records produced by the
normalizer. This package is kept pure and free of I/O or persistence
concerns, following Hexagonal Architecture principles.

# Key Entities

  - Snapshot: immutable per-session state value, one per orchestration step.
  - StepDefinition: a named unit of work in the reasoning graph, declaring
    the external capabilities it needs and a transition function.
  - Directive: tagged transition result (next step, fan-out, or terminal).
  - CallRecord: cached outcome of one external capability invocation.
  - TransactionRecord: canonical, decimal-safe transaction row.
*/
package domain
