// Package middleware wraps a SnapshotStore with at-rest protections:
// AES-GCM encryption of snapshot contents and PII masking of variable
// values, for deployments where the store backend is shared infrastructure.
package middleware

import "github.com/pennywise-ai/pennywise/pkg/ports"

// Middleware allows wrapping a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore

// Chain applies middlewares left to right: the first middleware is the
// outermost wrapper.
func Chain(store ports.SnapshotStore, mws ...Middleware) ports.SnapshotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
