// Package migration provides the shared types for routing workflow
// executions across interchangeable backends during a live migration.
//
// It defines the backend taxonomy with an explicit priority table, the
// per-request routing context, execution results with full attempt history,
// and the error taxonomy shared by the selector, circuit breaker, and
// execution manager subpackages.
package migration
