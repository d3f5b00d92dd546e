package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/api"
)

func TestSSELimiterPerIPCap(t *testing.T) {
	l := api.NewSSELimiter()

	for i := 0; i < api.MaxSSEPerIP; i++ {
		require.True(t, l.Acquire("10.0.0.1"))
	}
	assert.False(t, l.Acquire("10.0.0.1"), "connection beyond per-IP cap must be refused")

	// Another IP is unaffected.
	assert.True(t, l.Acquire("10.0.0.2"))
}

func TestSSELimiterReleaseFreesSlot(t *testing.T) {
	l := api.NewSSELimiter()

	for i := 0; i < api.MaxSSEPerIP; i++ {
		require.True(t, l.Acquire("10.0.0.1"))
	}
	require.False(t, l.Acquire("10.0.0.1"))

	l.Release("10.0.0.1")
	assert.True(t, l.Acquire("10.0.0.1"))
}

func TestSSELimiterCounts(t *testing.T) {
	l := api.NewSSELimiter()

	require.True(t, l.Acquire("10.0.0.1"))
	require.True(t, l.Acquire("10.0.0.1"))
	require.True(t, l.Acquire("10.0.0.2"))

	assert.Equal(t, int64(3), l.GlobalCount())
	assert.Equal(t, int64(2), l.IPCount("10.0.0.1"))
	assert.Equal(t, int64(1), l.IPCount("10.0.0.2"))

	l.Release("10.0.0.1")
	l.Release("10.0.0.1")
	assert.Equal(t, int64(0), l.IPCount("10.0.0.1"))
	assert.Equal(t, int64(1), l.GlobalCount())
}
