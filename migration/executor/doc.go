// Package executor orchestrates end-to-end workflow execution during the
// backend migration.
//
// The Manager asks the selector for a fallback chain, then walks it in a
// single pass: each candidate backend runs through its own circuit
// breaker, with the next candidate's guarded call wired in as that
// breaker's fallback. The walk terminates after at most one attempt per
// chain entry; if even the terminal legacy queue fails, the caller gets an
// AllBackendsExhaustedError carrying the complete attempt history.
package executor
