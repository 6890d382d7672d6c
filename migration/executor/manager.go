package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/lib-migration/migration"
	"github.com/taskmesh/lib-migration/migration/circuitbreaker"
	"github.com/taskmesh/lib-migration/migration/flags"
	"github.com/taskmesh/lib-migration/migration/log"
	"github.com/taskmesh/lib-migration/migration/monitoring"
	"github.com/taskmesh/lib-migration/migration/selector"
)

// Config holds execution manager configuration.
type Config struct {
	// AttemptTimeout bounds each backend attempt. Zero disables the bound.
	// A timed-out attempt counts as a breaker failure unless the breaker's
	// FailurePredicate says otherwise.
	AttemptTimeout time.Duration

	// BreakerConfig is the default breaker configuration per backend.
	BreakerConfig circuitbreaker.Config

	// BreakerOverrides replaces BreakerConfig for specific backends.
	BreakerOverrides map[migration.BackendType]circuitbreaker.Config

	// Namespace is the flag namespace, flags.DefaultNamespace when empty.
	Namespace string

	// TaskAbstractionRollout optionally gates ShouldUseTaskAbstraction by
	// percentage rollout. Zero means the flag alone decides.
	TaskAbstractionRollout int
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return flags.DefaultNamespace
	}

	return c.Namespace
}

// Manager routes workflow executions across backends with per-backend
// circuit breaking and ordered fallback. It holds no per-request state;
// many requests may be in flight concurrently.
type Manager struct {
	selector  *selector.Selector
	registry  *Registry
	breakers  circuitbreaker.Manager
	evaluator *flags.Evaluator
	sink      monitoring.Sink
	logger    log.Logger
	config    Config
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSink sets the monitoring sink. Defaults to NoopSink.
func WithSink(sink monitoring.Sink) Option {
	return func(m *Manager) {
		m.sink = sink
	}
}

// WithLogger sets the logger. Defaults to NoneLogger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager. Breaker transitions on the supplied breaker
// manager are forwarded to the monitoring sink.
func New(sel *selector.Selector, registry *Registry, breakers circuitbreaker.Manager, evaluator *flags.Evaluator, config Config, opts ...Option) *Manager {
	if config.BreakerConfig.Validate() != nil {
		config.BreakerConfig = circuitbreaker.DefaultConfig()
	}

	m := &Manager{
		selector:  sel,
		registry:  registry,
		breakers:  breakers,
		evaluator: evaluator,
		sink:      monitoring.NoopSink{},
		logger:    &log.NoneLogger{},
		config:    config,
	}

	for _, opt := range opts {
		opt(m)
	}

	breakers.RegisterStateChangeListener(&breakerEventListener{manager: m})

	return m
}

// ExecuteWorkflow routes one workflow execution through the fallback
// chain. It returns the first successful outcome, or an
// AllBackendsExhaustedError when every chain entry failed.
func (m *Manager) ExecuteWorkflow(ctx context.Context, workflowName string, input map[string]any, mctx migration.Context) (*migration.ExecutionResult, error) {
	if mctx.WorkflowName == "" {
		mctx.WorkflowName = workflowName
	}

	chain := m.selector.FallbackChain(ctx, mctx)

	m.emit(ctx, monitoring.EventBackendSelected, map[string]any{
		"workflow_name": workflowName,
		"backend":       chain[0].String(),
		"chain":         chainStrings(chain),
		"user_id":       mctx.UserID,
	})

	rec := &attemptRecorder{}

	result, err := m.callChain(ctx, chain, 0, workflowName, input, mctx, rec)
	if err != nil {
		exhausted := &migration.AllBackendsExhaustedError{
			WorkflowName: workflowName,
			Attempts:     rec.attempts,
		}

		m.logger.Errorf("workflow %s: %v", workflowName, exhausted)
		m.emit(ctx, monitoring.EventChainExhausted, map[string]any{
			"workflow_name": workflowName,
			"chain":         chainStrings(chain),
			"attempts":      len(rec.attempts),
		})

		return nil, exhausted
	}

	output, _ := result.(map[string]any)

	execResult := &migration.ExecutionResult{
		WorkflowID:   workflowID(output),
		BackendUsed:  rec.winner,
		Status:       workflowStatus(output),
		FallbackUsed: rec.winner != chain[0],
		Attempts:     rec.attempts,
		Output:       output,
	}

	if execResult.FallbackUsed {
		m.logger.Warnf("workflow %s: fell back from %s to %s", workflowName, chain[0], rec.winner)
		m.emit(ctx, monitoring.EventFallbackUsed, map[string]any{
			"workflow_name": workflowName,
			"from_backend":  chain[0].String(),
			"to_backend":    rec.winner.String(),
		})
	}

	return execResult, nil
}

// callChain attempts chain[idx] through its breaker, wiring the rest of
// the chain in as the breaker fallback. The index strictly increases, so
// the walk makes exactly one pass and terminates.
func (m *Manager) callChain(ctx context.Context, chain []migration.BackendType, idx int, workflowName string, input map[string]any, mctx migration.Context, rec *attemptRecorder) (any, error) {
	if idx >= len(chain) {
		return nil, migration.ErrAllBackendsExhausted
	}

	backend := chain[idx]

	exec, err := m.registry.Get(backend)
	if err != nil {
		m.logger.Warnf("workflow %s: %v", workflowName, err)
		rec.record(backend, migration.AttemptSkipped, 0, err)

		return m.callChain(ctx, chain, idx+1, workflowName, input, mctx, rec)
	}

	breaker := m.breakers.GetOrCreate(backend.String(), m.breakerConfig(backend))

	// primaryAttempted distinguishes a breaker short-circuit from a real
	// failure when the fallback runs. Breaker calls primary and fallback
	// sequentially on this goroutine, so the flag needs no synchronization.
	primaryAttempted := false

	primary := func(callCtx context.Context) (any, error) {
		primaryAttempted = true

		attemptCtx := callCtx
		if m.config.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(callCtx, m.config.AttemptTimeout)

			defer cancel()
		}

		start := time.Now()
		output, execErr := exec.Execute(attemptCtx, workflowName, input, mctx)
		latency := time.Since(start)

		if execErr != nil {
			m.logger.Warnf("workflow %s: backend %s failed after %v: %v", workflowName, backend, latency, execErr)
			rec.record(backend, migration.AttemptFailed, latency, execErr)

			return nil, execErr
		}

		rec.record(backend, migration.AttemptSucceeded, latency, nil)
		rec.winner = backend

		return output, nil
	}

	fallback := func(fbCtx context.Context) (any, error) {
		if !primaryAttempted {
			rec.record(backend, migration.AttemptSkipped, 0, circuitbreaker.ErrCircuitOpen)
		}

		return m.callChain(fbCtx, chain, idx+1, workflowName, input, mctx, rec)
	}

	result, _, err := breaker.CallWithInfo(ctx, primary, fallback)

	return result, err
}

// ShouldUseTaskAbstraction reports whether the task abstraction flag is
// enabled for the user, applying the configured rollout gate.
func (m *Manager) ShouldUseTaskAbstraction(ctx context.Context, workflowName string, mctx migration.Context) bool {
	if mctx.WorkflowName == "" {
		mctx.WorkflowName = workflowName
	}

	key, _ := selector.FlagKey(migration.BackendTaskAbstraction)

	if !m.evaluator.IsEnabled(ctx, key, m.config.namespace(), mctx.UserID, mctx.FlagContext()) {
		return false
	}

	if m.config.TaskAbstractionRollout > 0 {
		return m.evaluator.InRollout(key, mctx.UserID, m.config.TaskAbstractionRollout)
	}

	return true
}

// SelectBackend is exposed for introspection and testing.
func (m *Manager) SelectBackend(ctx context.Context, mctx migration.Context, preferred *migration.BackendType) migration.BackendType {
	return m.selector.SelectBackend(ctx, mctx, preferred)
}

// FallbackChain is exposed for introspection and testing.
func (m *Manager) FallbackChain(ctx context.Context, mctx migration.Context) []migration.BackendType {
	return m.selector.FallbackChain(ctx, mctx)
}

func (m *Manager) breakerConfig(backend migration.BackendType) circuitbreaker.Config {
	if override, ok := m.config.BreakerOverrides[backend]; ok {
		return override
	}

	return m.config.BreakerConfig
}

// emit forwards an event to the sink. Sink panics are contained; the
// execution path never depends on the sink.
func (m *Manager) emit(ctx context.Context, eventType string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("monitoring sink panic for event %s: %v", eventType, r)
		}
	}()

	m.sink.RecordMigrationEvent(ctx, eventType, payload)
}

// breakerEventListener forwards breaker transitions to the sink.
type breakerEventListener struct {
	manager *Manager
}

func (l *breakerEventListener) OnStateChange(name string, from, to circuitbreaker.State) {
	l.manager.emit(context.Background(), monitoring.EventBreakerTransition, map[string]any{
		"backend": name,
		"from":    string(from),
		"to":      string(to),
	})
}

// attemptRecorder accumulates one request's walk through the chain. It is
// request-local and touched only by the request's goroutine.
type attemptRecorder struct {
	attempts []migration.Attempt
	winner   migration.BackendType
}

func (r *attemptRecorder) record(backend migration.BackendType, outcome migration.AttemptOutcome, latency time.Duration, err error) {
	attempt := migration.Attempt{
		Backend: backend,
		Outcome: outcome,
		Latency: latency,
	}

	if err != nil {
		attempt.Error = err.Error()
	}

	r.attempts = append(r.attempts, attempt)
}

func workflowID(output map[string]any) string {
	if id, ok := output["workflow_id"].(string); ok && id != "" {
		return id
	}

	return uuid.NewString()
}

func workflowStatus(output map[string]any) string {
	if status, ok := output["status"].(string); ok && status != "" {
		return status
	}

	return "completed"
}

func chainStrings(chain []migration.BackendType) []string {
	names := make([]string, len(chain))
	for i, b := range chain {
		names[i] = b.String()
	}

	return names
}
