// Package selector decides which execution backend serves a workflow
// request and builds the ordered fallback chain walked when backends fail.
//
// Precedence: an explicit preferred backend wins, then organization-level
// hard overrides, then per-user flags (optionally gated by percentage
// rollout) in descending backend priority, then the legacy queue default.
//
// Selectors hold no mutable state and are safe for unsynchronized
// concurrent use.
package selector
