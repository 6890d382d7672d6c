// Package monitoring emits fire-and-forget migration events: backend
// selection decisions, fallback usage, and circuit breaker transitions.
//
// Sink implementations are best-effort. A sink that errors or panics must
// never affect the execution path, so the execution manager wraps every
// emission in a recovery guard.
package monitoring
