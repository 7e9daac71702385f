package ports

import (
	"context"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// CallCache stores external-call records keyed by content hash. Keys are
// derived from the request body alone, so identical aggregator or model
// queries are shared across sessions. Implementations apply their own TTL;
// a missing or expired key is simply a miss.
type CallCache interface {
	Get(ctx context.Context, key string) (*domain.CallRecord, bool)
	Put(ctx context.Context, rec *domain.CallRecord)
}
