package cash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
)

var today = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func mustPolicy(t *testing.T, m Method) *Policy {
	t.Helper()
	p, err := NewPolicy(m, 0.45, 0.10)
	require.NoError(t, err)
	return p
}

func TestScaleDownPreservesProportions(t *testing.T) {
	p := mustPolicy(t, ScaleDown)
	alloc := p.Apply(weights.Vector{"tc": 0.5, "ti": 0.3, "hc": 0.2}, Overlay{ExposureScalar: 0.5, StopMultiplier: 0.75})

	assert.InDelta(t, 0.25, alloc.Weights["tc"], 1e-12)
	assert.InDelta(t, 0.15, alloc.Weights["ti"], 1e-12)
	assert.InDelta(t, 0.10, alloc.Weights["hc"], 1e-12)
	assert.InDelta(t, 0.50, alloc.Weights[weights.Cash], 1e-12)
	assert.InDelta(t, 1.0, alloc.Weights.Sum(), 1e-12)
	assert.Equal(t, 1.0, alloc.StopMultiplier)
	assert.InDelta(t, 0.5, EffectiveExposure(alloc.Weights), 1e-12)
}

func TestScaleDownIgnoresExistingCash(t *testing.T) {
	p := mustPolicy(t, ScaleDown)
	alloc := p.Apply(weights.Vector{"tc": 0.8, weights.Cash: 0.2}, NoOverlay)
	assert.InDelta(t, 0.8, alloc.Weights["tc"], 1e-12)
	assert.InDelta(t, 0.2, alloc.Weights[weights.Cash], 1e-12)
}

func TestExplicitPassThrough(t *testing.T) {
	p := mustPolicy(t, Explicit)
	in := weights.Vector{"tc": 0.4, weights.Cash: 0.6}
	assert.Equal(t, in, p.Apply(in, Overlay{ExposureScalar: 0.5}).Weights)

	// without cash it falls back to scale-down
	alloc := p.Apply(weights.Vector{"tc": 1}, Overlay{ExposureScalar: 0.5})
	assert.InDelta(t, 0.5, alloc.Weights[weights.Cash], 1e-12)
}

func TestHybridSurfacesStopMultiplier(t *testing.T) {
	p := mustPolicy(t, Hybrid)
	alloc := p.Apply(weights.Vector{"tc": 1}, Overlay{ExposureScalar: 0.6, StopMultiplier: 0.75})
	assert.Equal(t, 0.75, alloc.StopMultiplier)
	assert.InDelta(t, 0.4, alloc.Weights[weights.Cash], 1e-12)
}

func TestCheckFlagsButNeverFails(t *testing.T) {
	p := mustPolicy(t, ScaleDown)

	ws := p.Check(today, weights.Vector{"tc": 0.8, weights.Cash: 0.2}, "Crisis", true)
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeCashBelowFloor, ws[0].Code)

	ws = p.Check(today, weights.Vector{"tc": 0.7, weights.Cash: 0.3}, "Normal", false)
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeUnexpectedCash, ws[0].Code)

	assert.Empty(t, p.Check(today, weights.Vector{"tc": 0.5, weights.Cash: 0.5}, "Crisis", true))
	assert.Empty(t, p.Check(today, weights.Vector{"tc": 1, weights.Cash: 0}, "Normal", false))
}

func TestNewPolicyRejectsUnknownMethod(t *testing.T) {
	_, err := NewPolicy("leveraged", 0.45, 0.1)
	assert.Error(t, err)
}
