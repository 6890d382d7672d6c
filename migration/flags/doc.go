// Package flags adapts an external feature-flag capability for backend
// selection and adds deterministic percentage-rollout hashing on top of
// raw boolean flags.
//
// The Evaluator is stateless and safe for unsynchronized concurrent use.
// Flag service errors never propagate: evaluation fails closed to false so
// routing degrades to the deterministic default backend.
package flags
