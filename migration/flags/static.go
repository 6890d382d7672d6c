package flags

import (
	"context"
	"sync"
)

// StaticClient is an in-memory Client backed by a flag map, keyed by
// namespace and flag key. It is intended for local configuration and tests.
type StaticClient struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewStaticClient creates a StaticClient from flags in DefaultNamespace.
func NewStaticClient(flags map[string]bool) *StaticClient {
	c := &StaticClient{flags: make(map[string]bool, len(flags))}
	for key, enabled := range flags {
		c.flags[staticKey(DefaultNamespace, key)] = enabled
	}

	return c
}

// Set updates a flag value in a namespace.
func (c *StaticClient) Set(namespace, flagKey string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flags[staticKey(namespace, flagKey)] = enabled
}

// CheckFeatureFlagStatus implements Client. Unknown flags are disabled.
func (c *StaticClient) CheckFeatureFlagStatus(_ context.Context, flagKey, namespace, _ string, _ map[string]any) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.flags[staticKey(namespace, flagKey)], nil
}

func staticKey(namespace, flagKey string) string {
	return namespace + ":" + flagKey
}
