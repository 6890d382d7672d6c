package migration

import "errors"

// ErrInvalidContext indicates a routing context is missing required fields.
var ErrInvalidContext = errors.New("migration: context requires user_id and organization_id")

// Context carries the per-request routing inputs. It is immutable for the
// lifetime of a request and serves both as the rollout hashing key and as
// the evaluation context handed to the flag service.
type Context struct {
	UserID         string
	OrganizationID string
	WorkflowName   string
}

// Validate checks that the context carries the fields selection depends on.
func (c Context) Validate() error {
	if c.UserID == "" || c.OrganizationID == "" {
		return ErrInvalidContext
	}

	return nil
}

// FlagContext returns the map handed to flag evaluation alongside the
// entity ID.
func (c Context) FlagContext() map[string]any {
	return map[string]any{
		"organization_id": c.OrganizationID,
		"workflow_name":   c.WorkflowName,
	}
}
