/*
Package ports defines the driven ports (interfaces) for the PennyWise engine.

These interfaces decouple the orchestration core from external
implementations, allowing the engine to work with various snapshot stores,
call caches, and capability backends.

# Key Interfaces

  - SnapshotStore: append-only, optimistically versioned session state.
  - CallCache: idempotent reuse of external-call results by content hash.
  - DataGateway / ModelClient: the two external capabilities.
  - DistributedLocker: cross-replica serialization of session turns.
*/
package ports
