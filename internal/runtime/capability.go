package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// collect resolves every capability request of a step: cache hits are
// served without re-invoking the capability, misses are invoked with
// bounded jittered backoff. Requests are issued concurrently and joined
// before the transition function runs. On deadline expiry in-flight calls
// are abandoned, not awaited.
func (e *Engine) collect(ctx context.Context, def domain.StepDefinition, snap *domain.Snapshot) (domain.CallResults, error) {
	var reqs []domain.CapabilityRequest
	if def.Prepare != nil {
		var err error
		reqs, err = def.Prepare(snap)
		if err != nil {
			return nil, fmt.Errorf("step %q: prepare: %w", def.Name, err)
		}
	}
	results := make(domain.CallResults, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	if err := validateRequests(def, reqs); err != nil {
		return nil, err
	}

	type outcome struct {
		name string
		res  domain.CallResult
	}
	ch := make(chan outcome, len(reqs))
	for _, req := range reqs {
		go func(req domain.CapabilityRequest) {
			ch <- outcome{name: req.Name, res: e.callOne(ctx, def.Name, snap.SessionID, req)}
		}(req)
	}

	for range reqs {
		select {
		case <-ctx.Done():
			// Deadline expiry is the turn timeout; a caller-side
			// cancellation propagates as itself.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, domain.ErrTurnTimeout
			}
			return nil, ctx.Err()
		case o := <-ch:
			results[o.name] = o.res
		}
	}
	return results, nil
}

func validateRequests(def domain.StepDefinition, reqs []domain.CapabilityRequest) error {
	allowed := make(map[domain.CapabilityKind]bool, len(def.Capabilities))
	for _, k := range def.Capabilities {
		allowed[k] = true
	}
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.Name == "" {
			return fmt.Errorf("step %q: capability request without a name", def.Name)
		}
		if seen[req.Name] {
			return fmt.Errorf("step %q: duplicate capability request %q", def.Name, req.Name)
		}
		seen[req.Name] = true
		if !allowed[req.Kind] {
			return fmt.Errorf("step %q: capability %q not declared", def.Name, req.Kind)
		}
	}
	return nil
}

// callOne serves one request from cache or invokes the capability.
// Failures after exhausted retries become typed failure values; only
// deadline expiry surfaces as an error, via the collect join.
func (e *Engine) callOne(ctx context.Context, step string, sessionID domain.SessionID, req domain.CapabilityRequest) domain.CallResult {
	key := domain.CacheKey(step, req)

	if rec, ok := e.cache.Get(ctx, key); ok && time.Since(rec.CreatedAt) < e.cacheTTL {
		e.emitCapability(ctx, domain.EventCapabilityReturn, sessionID, step, req.Kind, rec.Failure, true, 0)
		return rec.Result()
	}

	e.emitCapability(ctx, domain.EventCapabilityCall, sessionID, step, req.Kind, "", false, 0)
	started := time.Now()

	// Concurrent identical misses across sessions collapse into a single
	// upstream invocation.
	v, err, _ := e.flight.Do(key, func() (any, error) {
		value, callErr := e.invokeWithRetry(ctx, req)
		rec := &domain.CallRecord{
			Key:       key,
			Step:      step,
			Kind:      req.Kind,
			CreatedAt: time.Now().UTC(),
		}
		if callErr != nil {
			var capErr *domain.CapabilityError
			if !errors.As(callErr, &capErr) {
				return nil, callErr
			}
			rec.Failure = capErr.Kind
			e.cache.Put(ctx, rec)
			return rec, nil
		}
		rec.OK = true
		rec.Value = value
		e.cache.Put(ctx, rec)
		return rec, nil
	})

	elapsed := time.Since(started)
	if err != nil {
		// Not a capability failure: the turn deadline expired mid-call.
		// Surface it as an upstream failure value; the collect join handles
		// the deadline itself.
		e.logger.Warn("capability call aborted", "step", step, "kind", req.Kind, "err", err)
		capErr := domain.NewCapabilityError(domain.FailureUpstreamUnavailable, err)
		e.emitCapability(ctx, domain.EventCapabilityReturn, sessionID, step, req.Kind, capErr.Kind, false, elapsed)
		return domain.CallResult{Failure: capErr}
	}

	rec := v.(*domain.CallRecord)
	e.emitCapability(ctx, domain.EventCapabilityReturn, sessionID, step, req.Kind, rec.Failure, false, elapsed)
	res := rec.Result()
	res.Cached = false
	return res
}

// invokeWithRetry applies the bounded, jittered exponential backoff policy
// around a single capability dispatch. Non-retryable failures (expired
// credentials) short-circuit.
func (e *Engine) invokeWithRetry(ctx context.Context, req domain.CapabilityRequest) (any, error) {
	op := func() (any, error) {
		v, err := e.dispatch(ctx, req)
		if err != nil {
			var capErr *domain.CapabilityError
			if errors.As(err, &capErr) && !capErr.Retryable() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return v, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.InitialInterval
	b.MaxInterval = e.retry.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.retry.MaxAttempts),
	)
}

// dispatch routes one request to its capability backend.
func (e *Engine) dispatch(ctx context.Context, req domain.CapabilityRequest) (any, error) {
	switch req.Kind {
	case domain.CapabilityGateway:
		if e.caps.Gateway == nil {
			return nil, fmt.Errorf("no data gateway configured")
		}
		if req.Gateway == nil {
			return nil, fmt.Errorf("gateway request %q has no body", req.Name)
		}
		switch req.Gateway.Op {
		case domain.GatewayAccounts:
			return e.caps.Gateway.FetchAccounts(ctx, req.Gateway.Auth)
		case domain.GatewayTransactions:
			return e.caps.Gateway.FetchTransactions(ctx, req.Gateway.Auth, req.Gateway.Range)
		default:
			return nil, fmt.Errorf("unknown gateway op %q", req.Gateway.Op)
		}
	case domain.CapabilityModel:
		if e.caps.Model == nil {
			return nil, fmt.Errorf("no model client configured")
		}
		if req.Model == nil {
			return nil, fmt.Errorf("model request %q has no body", req.Name)
		}
		return e.caps.Model.Complete(ctx, *req.Model)
	default:
		return nil, fmt.Errorf("unknown capability kind %q", req.Kind)
	}
}

func (e *Engine) emitCapability(ctx context.Context, typ domain.EventType, sessionID domain.SessionID, step string, kind domain.CapabilityKind, failure domain.FailureKind, cached bool, d time.Duration) {
	fn := e.hooks.OnCapabilityCall
	if typ == domain.EventCapabilityReturn {
		fn = e.hooks.OnCapabilityReturn
	}
	if fn == nil {
		return
	}
	fn(ctx, &domain.CapabilityEvent{
		Timestamp: time.Now().UTC(),
		Type:      typ,
		SessionID: sessionID,
		Step:      step,
		Kind:      kind,
		CacheHit:  cached,
		Failure:   failure,
		Duration:  d,
	})
}
