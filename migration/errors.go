package migration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownBackend indicates a backend identifier outside the taxonomy.
	ErrUnknownBackend = errors.New("migration: unknown backend type")

	// ErrAllBackendsExhausted is the sentinel matched by errors.Is against
	// an AllBackendsExhaustedError.
	ErrAllBackendsExhausted = errors.New("migration: all backends in fallback chain exhausted")

	// ErrNoExecutor indicates a chain entry with no registered executor.
	ErrNoExecutor = errors.New("migration: no executor registered for backend")
)

// AllBackendsExhaustedError is the single terminal failure a caller can see:
// every backend in the fallback chain failed, including the terminal
// LegacyQueue attempt. It carries the complete attempt history.
type AllBackendsExhaustedError struct {
	WorkflowName string
	Attempts     []Attempt
}

func (e *AllBackendsExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Error != "" {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", a.Backend, a.Outcome, a.Error))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Backend, a.Outcome))
		}
	}

	return fmt.Sprintf("workflow %q: all backends exhausted [%s]", e.WorkflowName, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrAllBackendsExhausted) match.
func (e *AllBackendsExhaustedError) Unwrap() error {
	return ErrAllBackendsExhausted
}
