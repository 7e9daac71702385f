package steps

import (
	"encoding/json"
	"fmt"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// decodeValue converts a capability result value into out. Values arrive
// either as their native Go types or, after a cache round trip, as decoded
// JSON maps; a marshal/unmarshal cycle absorbs both shapes.
func decodeValue(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode capability value: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode capability value: %w", err)
	}
	return nil
}

// modelContent extracts the completion text from a model call value.
func modelContent(v any) (string, error) {
	var out ports.ModelOutput
	if err := decodeValue(v, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// varStrings reads a string slice variable, tolerating the []any shape
// JSON deserialization produces.
func varStrings(snap *domain.Snapshot, key string) []string {
	switch v := snap.Vars[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// varInt reads a numeric variable, tolerating float64 from JSON.
func varInt(snap *domain.Snapshot, key string) int {
	switch v := snap.Vars[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// varBool reads a boolean variable.
func varBool(snap *domain.Snapshot, key string) bool {
	v, ok := snap.Vars[key].(bool)
	return ok && v
}

// failureDelta records why a capability failed so the degraded answer can
// name the missing data.
func failureDelta(failure *domain.CapabilityError) domain.Delta {
	reason := "external service unavailable"
	if failure != nil {
		switch failure.Kind {
		case domain.FailureRateLimited:
			reason = "the data provider is rate limiting requests"
		case domain.FailureAuthExpired:
			reason = "the bank connection needs to be re-linked"
		case domain.FailureUpstreamUnavailable:
			reason = "the data provider is currently unavailable"
		}
	}
	return domain.Delta{Set: domain.Vars{
		VarDegraded:      true,
		VarFailureReason: reason,
	}}
}
