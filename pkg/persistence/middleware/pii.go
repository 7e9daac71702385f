package middleware

import (
	"context"
	"regexp"
	"time"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of snapshot
// variables whose keys match the patterns before they are persisted.
// Credentials like access_token never need to survive a process restart.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Create(ctx context.Context) (domain.SessionID, error) {
	return m.next.Create(ctx)
}

func (m *piiMiddleware) Append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error {
	// Deep-copy the variable space so masking never leaks into the
	// in-memory snapshot the engine is still working with.
	cloned := *snap
	cloned.Vars = deepCopyVars(snap.Vars)
	maskVars(cloned.Vars, m.patterns)
	return m.next.Append(ctx, id, &cloned)
}

func (m *piiMiddleware) Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error) {
	return m.next.Latest(ctx, id)
}

func (m *piiMiddleware) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	return m.next.History(ctx, id)
}

func (m *piiMiddleware) Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	return m.next.Info(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]domain.SessionID, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) ExpireIfStale(ctx context.Context, id domain.SessionID, ttl time.Duration) error {
	return m.next.ExpireIfStale(ctx, id, ttl)
}

func (m *piiMiddleware) Delete(ctx context.Context, id domain.SessionID) error {
	return m.next.Delete(ctx, id)
}

// Helpers

func deepCopyVars(m domain.Vars) domain.Vars {
	out := make(domain.Vars, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = map[string]any(deepCopyVars(subMap))
		} else {
			out[k] = v // shallow copy of value
		}
	}
	return out
}

func maskVars(m domain.Vars, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskVars(subMap, patterns)
		}
	}
}
