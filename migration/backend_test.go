package migration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendType_PriorityOrder(t *testing.T) {
	// Priorities are declared in an explicit table, not by constant order.
	assert.Greater(t, BackendTemporal.Priority(), BackendHatchet.Priority())
	assert.Greater(t, BackendHatchet.Priority(), BackendTaskAbstraction.Priority())
	assert.Greater(t, BackendTaskAbstraction.Priority(), BackendUnifiedQueue.Priority())
	assert.Greater(t, BackendUnifiedQueue.Priority(), BackendLegacyQueue.Priority())
}

func TestAllBackends_DescendingPriority(t *testing.T) {
	backends := AllBackends()

	require.Len(t, backends, 5)
	assert.Equal(t, []BackendType{
		BackendTemporal,
		BackendHatchet,
		BackendTaskAbstraction,
		BackendUnifiedQueue,
		BackendLegacyQueue,
	}, backends)
}

func TestBackendType_Valid(t *testing.T) {
	assert.True(t, BackendLegacyQueue.Valid())
	assert.True(t, BackendTemporal.Valid())
	assert.False(t, BackendType("celery").Valid())
	assert.False(t, BackendType("").Valid())
}

func TestBackendType_Experimental(t *testing.T) {
	assert.True(t, BackendHatchet.Experimental())
	assert.True(t, BackendTemporal.Experimental())
	assert.False(t, BackendLegacyQueue.Experimental())
	assert.False(t, BackendTaskAbstraction.Experimental())
}

func TestParseBackendType(t *testing.T) {
	backend, err := ParseBackendType("task_abstraction")
	require.NoError(t, err)
	assert.Equal(t, BackendTaskAbstraction, backend)

	_, err = ParseBackendType("sidekiq")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
