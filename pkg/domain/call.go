package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// CallRecord is the cached outcome of one external capability invocation.
// An identical cache key within the TTL window returns the record without
// re-invoking the capability.
type CallRecord struct {
	Key       string         `json:"key"`
	Step      string         `json:"step"`
	Kind      CapabilityKind `json:"kind"`
	Value     any            `json:"value,omitempty"`
	OK        bool           `json:"ok"`
	Failure   FailureKind    `json:"failure,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result converts the record back into the CallResult handed to transition
// functions, marking it as served from cache.
func (r *CallRecord) Result() CallResult {
	if !r.OK {
		return CallResult{Failure: &CapabilityError{Kind: r.Failure}, Cached: true}
	}
	return CallResult{Value: r.Value, Cached: true}
}

// CacheKey derives the deterministic, content-addressed hash identifying a
// capability call: step name plus the canonical JSON of the request body.
// Identical queries hash identically across sessions, enabling shared reuse.
func CacheKey(step string, req CapabilityRequest) string {
	body, err := json.Marshal(req)
	if err != nil {
		// Requests are plain data; marshaling only fails on programmer error.
		body = []byte(fmt.Sprintf("%#v", req))
	}
	sum := sha256.Sum256(append([]byte(step+"\x00"), body...))
	return hex.EncodeToString(sum[:])
}
