// Package circuitbreaker isolates failing execution backends so one
// unhealthy dependency cannot cascade into overall request failure.
//
// Each backend identifier owns a Breaker with the classic three-state
// machine: Closed counts consecutive failures and trips to Open at the
// configured threshold; Open short-circuits every call to the fallback
// until the recovery timeout elapses; HalfOpen admits exactly one probe at
// a time and either closes after enough consecutive successes or reopens
// on the first probe failure.
//
// Use NewManager for an arena of breakers keyed by backend identifier,
// each with its own narrow lock so a slow backend never serializes traffic
// through other backends' breakers. The optional HealthChecker resets open
// breakers once an out-of-band probe confirms the backend recovered.
package circuitbreaker
