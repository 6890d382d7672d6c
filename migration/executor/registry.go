package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskmesh/lib-migration/migration"
)

// BackendExecutor runs a workflow on one execution backend. The business
// logic behind Execute is out of scope here; implementations live with the
// backends themselves.
type BackendExecutor interface {
	// Execute runs the workflow and returns its payload, conventionally
	// carrying "workflow_id" and "status" keys.
	Execute(ctx context.Context, workflowName string, input map[string]any, mctx migration.Context) (map[string]any, error)
}

// ExecutorFunc adapts a function to the BackendExecutor interface.
type ExecutorFunc func(ctx context.Context, workflowName string, input map[string]any, mctx migration.Context) (map[string]any, error)

// Execute implements BackendExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, workflowName string, input map[string]any, mctx migration.Context) (map[string]any, error) {
	return f(ctx, workflowName, input, mctx)
}

// Registry holds the executor for each backend.
type Registry struct {
	mu        sync.RWMutex
	executors map[migration.BackendType]BackendExecutor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[migration.BackendType]BackendExecutor)}
}

// Register adds or replaces the executor for a backend.
func (r *Registry) Register(backend migration.BackendType, exec BackendExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[backend] = exec
}

// Get returns the executor for a backend.
func (r *Registry) Get(backend migration.BackendType) (BackendExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", migration.ErrNoExecutor, backend)
	}

	return exec, nil
}
