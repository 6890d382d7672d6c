package circuitbreaker

import (
	"errors"
	"time"
)

var (
	// ErrInvalidFailureThreshold indicates FailureThreshold must be positive.
	ErrInvalidFailureThreshold = errors.New("circuitbreaker: failure threshold must be positive")
	// ErrInvalidRecoveryTimeout indicates RecoveryTimeout must be positive.
	ErrInvalidRecoveryTimeout = errors.New("circuitbreaker: recovery timeout must be positive")
	// ErrInvalidSuccessThreshold indicates SuccessThreshold must be positive.
	ErrInvalidSuccessThreshold = errors.New("circuitbreaker: success threshold must be positive")
)

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive matching failures that
	// trips a closed breaker open.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker short-circuits before the
	// next call may probe the backend.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open probe
	// successes required to close the breaker.
	SuccessThreshold int

	// FailurePredicate decides which errors count toward the failure
	// threshold. Nil counts every error, including timeouts and
	// cancellations.
	FailurePredicate func(error) bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return ErrInvalidFailureThreshold
	}

	if c.RecoveryTimeout <= 0 {
		return ErrInvalidRecoveryTimeout
	}

	if c.SuccessThreshold <= 0 {
		return ErrInvalidSuccessThreshold
	}

	return nil
}

// countsAsFailure applies the predicate, defaulting to every error.
func (c Config) countsAsFailure(err error) bool {
	if err == nil {
		return false
	}

	if c.FailurePredicate == nil {
		return true
	}

	return c.FailurePredicate(err)
}

// DefaultConfig provides balanced settings for most backends.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	}
}

// AggressiveConfig for backends requiring fast failure detection.
func AggressiveConfig() Config {
	return Config{
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
		SuccessThreshold: 2,
	}
}

// ConservativeConfig for backends that should tolerate more failures.
func ConservativeConfig() Config {
	return Config{
		FailureThreshold: 10,
		RecoveryTimeout:  2 * time.Minute,
		SuccessThreshold: 5,
	}
}

// ExperimentalBackendConfig for experimental orchestrators, which should be
// abandoned quickly and retried cautiously.
func ExperimentalBackendConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 3,
	}
}
