package runtime_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/internal/runtime"
	"github.com/pennywise-ai/pennywise/pkg/adapters/memory"
	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
	"github.com/pennywise-ai/pennywise/pkg/registry"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

// fakeGateway counts invocations and serves canned rows or errors.
type fakeGateway struct {
	mu           sync.Mutex
	accountCalls int
	txCalls      int

	accounts []domain.Account
	rows     []domain.RawTransaction
	err      error
}

func (g *fakeGateway) FetchAccounts(ctx context.Context, auth domain.AuthContext) ([]domain.Account, error) {
	g.mu.Lock()
	g.accountCalls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.accounts, nil
}

func (g *fakeGateway) FetchTransactions(ctx context.Context, auth domain.AuthContext, r domain.DateRange) ([]domain.RawTransaction, error) {
	g.mu.Lock()
	g.txCalls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.rows, nil
}

func (g *fakeGateway) transactionCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txCalls
}

// fakeModel answers by prompt keyword so one fake serves the whole graph.
type fakeModel struct {
	mu    sync.Mutex
	calls int

	classification string
	err            error
	block          bool
}

func (m *fakeModel) Complete(ctx context.Context, req domain.ModelRequest) (ports.ModelOutput, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return ports.ModelOutput{}, ctx.Err()
	}
	if m.err != nil {
		return ports.ModelOutput{}, m.err
	}
	if strings.Contains(req.Prompt, "Classify this user query") {
		return ports.ModelOutput{Content: m.classification}, nil
	}
	return ports.ModelOutput{Content: "Here is what the data shows."}, nil
}

func (m *fakeModel) completions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fixtureRows() []domain.RawTransaction {
	return []domain.RawTransaction{
		{"account_id": "a1", "amount": -42.00, "date": "2026-08-02", "name": "Trader Joe's", "category": "Groceries"},
		{"account_id": "a1", "amount": -12.50, "date": "2026-08-10", "name": "Blue Bottle", "category": "Coffee"},
	}
}

type harness struct {
	engine  *runtime.Engine
	store   ports.SnapshotStore
	gateway *fakeGateway
	model   *fakeModel
}

func newHarness(t *testing.T, opts ...runtime.EngineOption) *harness {
	t.Helper()
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{UserID: "demo"})
	reg.Freeze()
	require.NoError(t, reg.Validate())

	store := memory.NewStore()
	cache := memory.NewCache(memory.DefaultCacheSize, time.Minute)
	gateway := &fakeGateway{rows: fixtureRows()}
	model := &fakeModel{classification: "transaction"}

	opts = append([]runtime.EngineOption{
		runtime.WithRetryPolicy(runtime.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}),
	}, opts...)

	engine := runtime.NewEngine(reg, store, cache,
		runtime.Capabilities{Gateway: gateway, Model: model}, opts...)
	return &harness{engine: engine, store: store, gateway: gateway, model: model}
}

func (h *harness) newSession(t *testing.T) domain.SessionID {
	t.Helper()
	id, err := h.store.Create(context.Background())
	require.NoError(t, err)
	return id
}

func TestTurn_SpendingQueryEndToEnd(t *testing.T) {
	h := newHarness(t)
	id := h.newSession(t)

	res, err := h.engine.Turn(context.Background(), id, steps.Classify, "how much did I spend?")
	require.NoError(t, err)

	assert.Contains(t, res.Answer, "Here is what the data shows.")
	assert.Contains(t, res.Answer, "Trader Joe's")
	assert.Contains(t, res.Answer, "$42.00 spent")
	assert.Equal(t, "-54.50", res.Snapshot.String("total"))
	assert.Equal(t, 4, res.Steps)

	// classify -> analyze-spending -> insights -> format-response, one
	// snapshot per step plus the seed, versions strictly increasing.
	history, err := h.store.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 6)
	cursors := make([]string, 0, len(history))
	for i, snap := range history {
		assert.Equal(t, uint64(i+1), snap.Version)
		cursors = append(cursors, snap.Cursor)
	}
	assert.Equal(t, []string{"", steps.Classify, steps.AnalyzeSpending, steps.Insights, steps.FormatResponse, ""}, cursors)

	// Conversation log carries both sides of the turn.
	final := history[len(history)-1]
	require.Len(t, final.Messages, 2)
	assert.Equal(t, domain.RoleUser, final.Messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, final.Messages[1].Role)
}

func TestTurn_GeneralChatPath(t *testing.T) {
	h := newHarness(t)
	h.model.classification = "general"
	id := h.newSession(t)

	res, err := h.engine.Turn(context.Background(), id, steps.Classify, "hello there")
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Here is what the data shows.")
	assert.Zero(t, h.gateway.transactionCalls())
}

func TestTurn_IdenticalCallsServedFromCache(t *testing.T) {
	h := newHarness(t)
	a := h.newSession(t)
	b := h.newSession(t)

	_, err := h.engine.Turn(context.Background(), a, steps.SpendingSummary, "summarize my spending")
	require.NoError(t, err)
	require.Equal(t, 1, h.gateway.transactionCalls())

	// Same content-addressed request from another session: no new upstream
	// invocation.
	_, err = h.engine.Turn(context.Background(), b, steps.SpendingSummary, "summarize my spending")
	require.NoError(t, err)
	assert.Equal(t, 1, h.gateway.transactionCalls())
}

func TestTurn_GatewayDownProducesDegradedAnswer(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = domain.NewCapabilityError(domain.FailureUpstreamUnavailable, fmt.Errorf("connection refused"))
	id := h.newSession(t)

	res, err := h.engine.Turn(context.Background(), id, steps.SpendingSummary, "summarize my spending")
	require.NoError(t, err, "capability failure must not abort the turn")

	assert.Contains(t, res.Answer, "incomplete")
	assert.Contains(t, res.Answer, "currently unavailable")
	assert.Equal(t, 3, h.gateway.transactionCalls(), "retried to the attempt bound")
}

func TestTurn_ExpiredCredentialsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = domain.NewCapabilityError(domain.FailureAuthExpired, fmt.Errorf("ITEM_LOGIN_REQUIRED"))
	id := h.newSession(t)

	res, err := h.engine.Turn(context.Background(), id, steps.SpendingSummary, "summarize my spending")
	require.NoError(t, err)

	assert.Contains(t, res.Answer, "re-linked")
	assert.Equal(t, 1, h.gateway.transactionCalls())
}

func TestTurn_UnknownEntryStep(t *testing.T) {
	h := newHarness(t)
	id := h.newSession(t)

	_, err := h.engine.Turn(context.Background(), id, "no-such-step", "hi")
	assert.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestTurn_SessionNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Turn(context.Background(), "ghost", steps.Classify, "hi")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestTurn_CycleHitsStepBudget(t *testing.T) {
	reg := registry.New()
	ping := domain.StepDefinition{
		Name:       "ping",
		Successors: []string{"pong"},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			return domain.Delta{}, domain.Next("pong"), nil
		},
	}
	pong := domain.StepDefinition{
		Name:       "pong",
		Successors: []string{"ping"},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			return domain.Delta{}, domain.Next("ping"), nil
		},
	}
	reg.MustRegister(ping)
	reg.MustRegister(pong)
	reg.Freeze()

	store := memory.NewStore()
	engine := runtime.NewEngine(reg, store, memory.NewCache(16, time.Minute),
		runtime.Capabilities{}, runtime.WithMaxSteps(5))

	id, err := store.Create(context.Background())
	require.NoError(t, err)

	_, err = engine.Turn(context.Background(), id, "ping", "loop")
	assert.ErrorIs(t, err, domain.ErrStepBudgetExceeded)
}

func TestTurn_ConcurrentAdvanceConflicts(t *testing.T) {
	reg := registry.New()
	store := memory.NewStore()

	// The step advances the session out-of-band mid-turn, so the engine's
	// own append arrives with a stale version.
	sneak := domain.StepDefinition{
		Name: "sneak",
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			latest, err := store.Latest(ctx, domain.SessionID(snap.SessionID))
			if err != nil {
				return domain.Delta{}, domain.Directive{}, err
			}
			intruder := latest.Next("", domain.Delta{Set: domain.Vars{"intruder": true}})
			if err := store.Append(ctx, domain.SessionID(snap.SessionID), intruder); err != nil {
				return domain.Delta{}, domain.Directive{}, err
			}
			return domain.Delta{}, domain.Terminal(), nil
		},
	}
	reg.MustRegister(sneak)
	reg.Freeze()

	engine := runtime.NewEngine(reg, store, memory.NewCache(16, time.Minute), runtime.Capabilities{})

	id, err := store.Create(context.Background())
	require.NoError(t, err)

	_, err = engine.Turn(context.Background(), id, "sneak", "race")
	assert.ErrorIs(t, err, domain.ErrConflict)

	// The session survives: the intruder snapshot is the committed tip.
	latest, err := store.Latest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, true, latest.Vars["intruder"])
}

func TestTurn_DeadlineAbandonsInFlightCalls(t *testing.T) {
	h := newHarness(t, runtime.WithTurnTimeout(50*time.Millisecond))
	h.model.block = true
	id := h.newSession(t)

	started := time.Now()
	_, err := h.engine.Turn(context.Background(), id, steps.Classify, "slow question")
	assert.ErrorIs(t, err, domain.ErrTurnTimeout)
	assert.Less(t, time.Since(started), 5*time.Second)

	// No partial step commit beyond the seed.
	history, err := h.store.History(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTurn_CallerCancellationIsNotATimeout(t *testing.T) {
	h := newHarness(t)
	h.model.block = true
	id := h.newSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := h.engine.Turn(ctx, id, steps.Classify, "slow question")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTurnTimeout)
}

func TestTurn_LifecycleHooksObserveTheTurn(t *testing.T) {
	var mu sync.Mutex
	var entered []string
	var capReturns []*domain.CapabilityEvent
	var turnEnds int

	hooks := domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, ev *domain.StepEvent) {
			mu.Lock()
			entered = append(entered, ev.Step)
			mu.Unlock()
		},
		OnCapabilityReturn: func(ctx context.Context, ev *domain.CapabilityEvent) {
			mu.Lock()
			capReturns = append(capReturns, ev)
			mu.Unlock()
		},
		OnTurnEnd: func(ctx context.Context, ev *domain.TurnEvent) {
			mu.Lock()
			turnEnds++
			mu.Unlock()
		},
	}

	h := newHarness(t, runtime.WithLifecycleHooks(hooks))
	id := h.newSession(t)

	_, err := h.engine.Turn(context.Background(), id, steps.Classify, "how much did I spend?")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{steps.Classify, steps.AnalyzeSpending, steps.Insights, steps.FormatResponse}, entered)
	assert.Len(t, capReturns, 3, "classification, transactions, analysis")
	assert.Equal(t, 1, turnEnds)
}

func TestTurn_SecondTurnContinuesConversation(t *testing.T) {
	h := newHarness(t)
	h.model.classification = "general"
	id := h.newSession(t)

	_, err := h.engine.Turn(context.Background(), id, steps.Classify, "hi")
	require.NoError(t, err)
	res, err := h.engine.Turn(context.Background(), id, steps.Classify, "tell me more")
	require.NoError(t, err)

	require.Len(t, res.Snapshot.Messages, 4)
	assert.Equal(t, "hi", res.Snapshot.Messages[0].Content)
	assert.Equal(t, "tell me more", res.Snapshot.Messages[2].Content)
}
