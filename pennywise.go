package pennywise

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/internal/runtime"
	"github.com/pennywise-ai/pennywise/pkg/adapters/memory"
	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
	"github.com/pennywise-ai/pennywise/pkg/registry"
	"github.com/pennywise-ai/pennywise/pkg/session"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// AnswerVar is re-exported for callers registering custom terminal steps.
const AnswerVar = runtime.AnswerVar

// Agent is the high-level entry point: sessions, turns, and the underlying
// step graph behind one API. It wraps the internal runtime engine the way
// the HTTP and CLI surfaces consume it.
type Agent struct {
	engine   *runtime.Engine
	sessions *session.Manager
	registry *registry.Registry

	store   ports.SnapshotStore
	cache   ports.CallCache
	caps    runtime.Capabilities
	locker  ports.DistributedLocker
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	entry   string
	stepOpt steps.Options

	runtimeOpts []runtime.EngineOption
	extraSteps  []domain.StepDefinition
	noBuiltin   bool
}

// Option configures the Agent.
type Option func(*Agent)

// WithStore replaces the default in-memory snapshot store.
func WithStore(store ports.SnapshotStore) Option {
	return func(a *Agent) { a.store = store }
}

// WithCallCache replaces the default in-memory call cache.
func WithCallCache(cache ports.CallCache) Option {
	return func(a *Agent) { a.cache = cache }
}

// WithGateway sets the data-gateway capability.
func WithGateway(gw ports.DataGateway) Option {
	return func(a *Agent) { a.caps.Gateway = gw }
}

// WithModel sets the language-model capability.
func WithModel(m ports.ModelClient) Option {
	return func(a *Agent) { a.caps.Model = m }
}

// WithLocker enables distributed turn locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Agent) { a.locker = locker }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) { a.hooks = hooks }
}

// WithEntryStep overrides the default entry step for turns.
func WithEntryStep(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.entry = name
		}
	}
}

// WithStepOptions tunes the built-in graph.
func WithStepOptions(opts steps.Options) Option {
	return func(a *Agent) { a.stepOpt = opts }
}

// WithStep registers an additional step alongside the built-in graph.
func WithStep(def domain.StepDefinition) Option {
	return func(a *Agent) { a.extraSteps = append(a.extraSteps, def) }
}

// WithoutBuiltinGraph skips the built-in steps entirely. The caller must
// register its own graph via WithStep and set the entry with WithEntryStep.
func WithoutBuiltinGraph() Option {
	return func(a *Agent) { a.noBuiltin = true }
}

// WithEngineOptions forwards raw engine options (budgets, timeouts, retry).
func WithEngineOptions(opts ...runtime.EngineOption) Option {
	return func(a *Agent) { a.runtimeOpts = append(a.runtimeOpts, opts...) }
}

// New assembles an Agent. Defaults: in-memory store and cache, the
// built-in graph, classify as the entry step. The step registry is
// validated and frozen before return; no registration can happen after.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{
		logger: logging.NewNop(),
		entry:  steps.Classify,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		a.store = memory.NewStore()
	}
	if a.cache == nil {
		a.cache = memory.NewCache(memory.DefaultCacheSize, memory.DefaultCacheTTL)
	}

	a.registry = registry.New()
	if !a.noBuiltin {
		if err := steps.Register(a.registry, a.stepOpt); err != nil {
			return nil, err
		}
	}
	for _, def := range a.extraSteps {
		if err := a.registry.Register(def); err != nil {
			return nil, err
		}
	}
	if err := a.registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid step graph: %w", err)
	}
	if _, err := a.registry.Resolve(a.entry); err != nil {
		return nil, fmt.Errorf("entry step: %w", err)
	}
	a.registry.Freeze()

	sessionOpts := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker))
	}
	a.sessions = session.NewManager(a.store, sessionOpts...)

	engineOpts := append([]runtime.EngineOption{
		runtime.WithLogger(a.logger),
		runtime.WithLifecycleHooks(a.hooks),
	}, a.runtimeOpts...)
	a.engine = runtime.NewEngine(a.registry, a.store, a.cache, a.caps, engineOpts...)

	return a, nil
}

// TurnResult is the outcome of one conversational turn.
type TurnResult struct {
	SessionID domain.SessionID
	Answer    string
	Steps     int
	Version   uint64
}

// CreateSession starts a new conversation.
func (a *Agent) CreateSession(ctx context.Context) (domain.SessionID, error) {
	return a.sessions.Create(ctx)
}

// Turn runs one conversational turn against the default entry step.
func (a *Agent) Turn(ctx context.Context, id domain.SessionID, input string) (*TurnResult, error) {
	return a.TurnAt(ctx, id, a.entry, input)
}

// TurnAt runs one turn from an explicit entry step, for task-specific
// surfaces like spending-summary or balance-inquiry.
func (a *Agent) TurnAt(ctx context.Context, id domain.SessionID, entry, input string) (*TurnResult, error) {
	var out *TurnResult
	err := a.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		res, err := a.engine.Turn(ctx, id, entry, input)
		if err != nil {
			return err
		}
		out = &TurnResult{
			SessionID: id,
			Answer:    res.Answer,
			Steps:     res.Steps,
			Version:   res.Snapshot.Version,
		}
		return nil
	})
	return out, err
}

// Session returns metadata for one session.
func (a *Agent) Session(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	return a.sessions.Info(ctx, id)
}

// History returns the full snapshot chain of a session.
func (a *Agent) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	return a.sessions.History(ctx, id)
}

// Sessions lists live session IDs.
func (a *Agent) Sessions(ctx context.Context) ([]domain.SessionID, error) {
	return a.sessions.List(ctx)
}

// CloseSession deletes a session and its history.
func (a *Agent) CloseSession(ctx context.Context, id domain.SessionID) error {
	return a.sessions.Delete(ctx, id)
}

// StartSweeper expires idle sessions until ctx is canceled. Run it in its
// own goroutine in server mode.
func (a *Agent) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	a.sessions.StartSweeper(ctx, ttl, interval)
}

// Steps exposes the registered step definitions for introspection.
func (a *Agent) Steps() []domain.StepDefinition {
	return a.registry.Steps()
}
