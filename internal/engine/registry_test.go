package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/engine/fusion"
	"FinFusion/internal/engine/thresholds"
)

func TestRegistryReusesEngines(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Close()

	a := r.Get("BTCUSDT", "1h")
	b := r.Get("BTCUSDT", "1h")
	c := r.Get("ETHUSDT", "5m")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "5m", c.Config().Thresholds.Timeframe)
	assert.Equal(t, []Key{{"BTCUSDT", "1h"}, {"ETHUSDT", "5m"}}, r.Keys())

	_, ok := r.Lookup("SOLUSDT", "1h")
	assert.False(t, ok)
}

func TestRegistryApplyConfig(t *testing.T) {
	r := NewRegistry(testConfig())
	defer r.Close()
	e := r.Get("BTCUSDT", "1h")

	next := testConfig()
	next.Thresholds = thresholds.DefaultConfig().WithOverrides(thresholds.WithMaxAdjustment(0.2))
	require.NoError(t, r.ApplyConfig(next))
	assert.Equal(t, 0.2, e.Config().Thresholds.MaxAdjustment)
	assert.Equal(t, 0.2, r.Get("ETHUSDT", "1h").Config().Thresholds.MaxAdjustment)

	bad := testConfig()
	bad.Fusion = fusion.DefaultConfig().WithOverrides(fusion.WithDecayRate(-1))
	require.Error(t, r.ApplyConfig(bad))
	assert.Equal(t, 0.2, r.Config().Thresholds.MaxAdjustment)
}
