// Package runtime implements the orchestration engine: a finite-state
// machine over named steps that sequences data-retrieval and model-reasoning
// work for one session turn, with cached, retried access to the external
// capabilities.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
	"github.com/pennywise-ai/pennywise/pkg/registry"
)

// Defaults bound a turn when no option overrides them.
const (
	DefaultMaxSteps    = 20
	DefaultTurnTimeout = 60 * time.Second
	DefaultCacheTTL    = 5 * time.Minute
)

// AnswerVar is the snapshot variable terminal steps write the user-facing
// answer into. QueryVar holds the user input the engine seeds each turn with.
const (
	AnswerVar = "answer"
	QueryVar  = "query"
)

// Capabilities bundles the external dependencies steps may request.
type Capabilities struct {
	Gateway ports.DataGateway
	Model   ports.ModelClient
}

// RetryPolicy bounds capability retries. Backoff is exponential with
// jitter between attempts.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the documented default of three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Engine executes the directed step graph for session turns.
type Engine struct {
	registry *registry.Registry
	store    ports.SnapshotStore
	cache    ports.CallCache
	caps     Capabilities

	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	maxSteps    int
	turnTimeout time.Duration
	cacheTTL    time.Duration
	retry       RetryPolicy

	flight singleflight.Group
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// WithMaxSteps bounds the steps executed per turn.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithTurnTimeout sets the per-turn deadline. Zero disables it.
func WithTurnTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.turnTimeout = d }
}

// WithRetryPolicy overrides the capability retry policy.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		if p.MaxAttempts > 0 {
			e.retry = p
		}
	}
}

// WithCacheTTL sets the freshness window for external-call records.
func WithCacheTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.cacheTTL = d
		}
	}
}

// NewEngine wires the orchestration core. The registry should be validated
// and frozen before the first turn.
func NewEngine(reg *registry.Registry, store ports.SnapshotStore, cache ports.CallCache, caps Capabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    reg,
		store:       store,
		cache:       cache,
		caps:        caps,
		logger:      logging.NewNop(),
		maxSteps:    DefaultMaxSteps,
		turnTimeout: DefaultTurnTimeout,
		cacheTTL:    DefaultCacheTTL,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnResult is the terminal outcome of one session turn.
type TurnResult struct {
	Snapshot *domain.Snapshot
	Answer   string
	Steps    int
}

// Turn executes one session turn: it seeds the turn with the user message,
// then follows step directives from the entry step until a terminal
// directive, the step budget, or the turn deadline.
//
// Engine invariant failures (conflict, unknown step, budget, timeout) abort
// the turn but never the session; the next turn starts fresh from the last
// committed snapshot.
func (e *Engine) Turn(ctx context.Context, sessionID domain.SessionID, entry, input string) (res *TurnResult, err error) {
	if e.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.turnTimeout)
		defer cancel()
	}

	started := time.Now()
	steps := 0
	defer func() {
		if e.hooks.OnTurnEnd != nil {
			e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
				Timestamp: time.Now().UTC(),
				SessionID: sessionID,
				Entry:     entry,
				Steps:     steps,
				Duration:  time.Since(started),
				Err:       err,
			})
		}
	}()

	latest, err := e.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Seed the turn: record the user message and move the cursor to the
	// entry step. Committing the seed immediately lets the optimistic
	// append serialize concurrent turns for the same session up front.
	seed := domain.Delta{Set: map[string]any{QueryVar: input}}
	if input != "" {
		seed.Messages = []domain.Message{{Role: domain.RoleUser, Content: input}}
	}
	cur := latest.Next(entry, seed)
	if err := e.append(ctx, sessionID, cur); err != nil {
		return nil, err
	}

	for {
		if steps >= e.maxSteps {
			return nil, fmt.Errorf("%w: %d steps in one turn (session %s)", domain.ErrStepBudgetExceeded, steps, sessionID)
		}
		steps++

		def, err := e.registry.Resolve(cur.Cursor)
		if err != nil {
			return nil, err
		}
		e.emitStep(ctx, domain.EventStepEnter, cur, def.Name)

		next, directive, err := e.runStep(ctx, def, cur)
		e.emitStep(ctx, domain.EventStepLeave, cur, def.Name)
		if err != nil {
			return nil, err
		}

		if err := e.append(ctx, sessionID, next); err != nil {
			return nil, err
		}
		cur = next

		if directive.Kind == domain.DirectiveTerminal {
			return &TurnResult{Snapshot: cur, Answer: cur.String(AnswerVar), Steps: steps}, nil
		}
	}
}

// runStep joins the step's capability calls, runs its transition function,
// and resolves the directive into the successor snapshot.
func (e *Engine) runStep(ctx context.Context, def domain.StepDefinition, cur *domain.Snapshot) (*domain.Snapshot, domain.Directive, error) {
	results, err := e.collect(ctx, def, cur)
	if err != nil {
		return nil, domain.Directive{}, err
	}

	delta, directive, err := def.Run(ctx, cur, results)
	if err != nil {
		return nil, domain.Directive{}, fmt.Errorf("step %q: %w", def.Name, err)
	}

	switch directive.Kind {
	case domain.DirectiveTerminal:
		return cur.Next("", delta), directive, nil
	case domain.DirectiveNext:
		if directive.NextStep == "" {
			return nil, domain.Directive{}, fmt.Errorf("step %q: empty next-step directive", def.Name)
		}
		return cur.Next(directive.NextStep, delta), directive, nil
	case domain.DirectiveFanOut:
		// Candidates inspect the post-delta state.
		preview := cur.Next("", delta)
		target, err := selectBranch(directive, preview)
		if err != nil {
			return nil, domain.Directive{}, fmt.Errorf("step %q: %w", def.Name, err)
		}
		return cur.Next(target, delta), directive, nil
	default:
		return nil, domain.Directive{}, fmt.Errorf("step %q: invalid directive kind %q", def.Name, directive.Kind)
	}
}

// append commits a snapshot, translating deadline expiry into the turn
// timeout error so no caller mistakes it for a store failure.
func (e *Engine) append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error {
	if err := e.store.Append(ctx, id, snap); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrTurnTimeout
		}
		if errors.Is(err, domain.ErrConflict) {
			e.logger.Warn("optimistic append lost, aborting turn",
				"session_id", id, "version", snap.Version)
		}
		return err
	}
	return nil
}

func (e *Engine) emitStep(ctx context.Context, typ domain.EventType, snap *domain.Snapshot, step string) {
	var fn func(context.Context, *domain.StepEvent)
	switch typ {
	case domain.EventStepEnter:
		fn = e.hooks.OnStepEnter
	case domain.EventStepLeave:
		fn = e.hooks.OnStepLeave
	}
	if fn == nil {
		return
	}
	fn(ctx, &domain.StepEvent{
		Timestamp: time.Now().UTC(),
		Type:      typ,
		SessionID: snap.SessionID,
		Step:      step,
		Version:   snap.Version,
	})
}
