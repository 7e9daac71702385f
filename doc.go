// Package pennywise is a stateful financial-reasoning agent: it answers
// questions about a user's transactions and accounts by orchestrating a
// directed graph of named steps over external data and model capabilities.
//
// # Concept
//
// Every conversation is a session, and every session is an append-only chain
// of immutable snapshots. A turn seeds the chain with the user's message,
// then follows step directives (classify, fetch, analyze, format) until a
// terminal step writes an answer. Appends are optimistically versioned, so
// concurrent turns against the same session serialize cleanly instead of
// corrupting state.
//
// External work is mediated by two capabilities: a data gateway (Plaid, or a
// CSV fixture for demos) and a model client (OpenAI-compatible). Calls are
// content-addressed and cached, retried with backoff, and deduplicated
// in-flight. Capability failures degrade the answer; they never crash the
// turn.
//
// # Key Features
//
//   - Immutable snapshot history with optimistic concurrency
//   - Frozen, validated step registry; custom steps via WithStep
//   - Content-addressed external-call cache with TTL
//   - Pluggable storage (in-memory, Redis) and distributed turn locking
//   - Lifecycle hooks for metrics and tracing
//
// # Usage
//
//	agent, err := pennywise.New(
//		pennywise.WithGateway(plaidClient),
//		pennywise.WithModel(openaiClient),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	id, _ := agent.CreateSession(ctx)
//	res, err := agent.Turn(ctx, id, "how much did I spend on coffee this month?")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Answer)
//
// The cmd/pennywise binary wraps this package with an HTTP API, an
// interactive chat TUI, and session management commands.
package pennywise
