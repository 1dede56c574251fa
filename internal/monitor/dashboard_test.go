package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bastion/internal/domain"
)

func TestDashboardRequiresMetrics(t *testing.T) {
	h := newTestHarness(t, "")

	_, err := h.engine.Dashboard()
	assert.ErrorIs(t, err, ErrNoMetrics)
}

func TestDashboardAfterCalmTick(t *testing.T) {
	h := newTestHarness(t, "")

	h.engine.tick()

	d, err := h.engine.Dashboard()
	require.NoError(t, err)

	assert.Equal(t, "low", d.RiskLevel)
	assert.Greater(t, d.HealthScore, 50.0)
	assert.Empty(t, d.ActiveAlerts)
	assert.False(t, d.EmergencyMode)
	assert.Equal(t, "inactive", d.MonitoringStatus)
	assert.Len(t, d.TopRiskyPositions, 3)
	assert.Len(t, d.RiskTrends.VaR, 1)
	assert.Nil(t, d.StressSummary)
}

func TestDashboardReflectsBreach(t *testing.T) {
	h := newTestHarness(t, "")

	h.engine.tick()
	h.portfolio.snap = calmSnapshot(2250)
	h.engine.tick()

	d, err := h.engine.Dashboard()
	require.NoError(t, err)

	assert.Equal(t, "high", d.RiskLevel)
	require.Len(t, d.ActiveAlerts, 1)
	assert.Equal(t, "drawdown_risk", d.ActiveAlerts[0].RiskType)
	assert.True(t, d.EmergencyMode)
	assert.Len(t, d.RiskTrends.Drawdown, 2)
}

func TestHealthScore(t *testing.T) {
	// Pristine metrics with full diversification score 100.
	m := domain.RiskMetrics{DiversificationRatio: 1.0}
	assert.InDelta(t, 100.0, healthScore(m), 1e-9)

	// The documented blend: 30/30/20/20 weighting.
	m = domain.RiskMetrics{
		VaR1d:                0.02,
		CurrentDrawdown:      0.05,
		Volatility:           0.25,
		DiversificationRatio: 0.7,
	}
	want := 80*0.3 + 75*0.3 + 50*0.2 + 70*0.2
	assert.InDelta(t, want, healthScore(m), 1e-9)

	// Disastrous metrics floor at zero.
	m = domain.RiskMetrics{VaR1d: 0.5, CurrentDrawdown: 0.9, Volatility: 2.0}
	assert.Equal(t, 0.0, healthScore(m))
}

func TestOverallRiskLevelBands(t *testing.T) {
	cases := []struct {
		name string
		m    domain.RiskMetrics
		want string
	}{
		{"calm", domain.RiskMetrics{VaR1d: 0.01, CurrentDrawdown: 0.05, Volatility: 0.2}, "low"},
		{"elevated var", domain.RiskMetrics{VaR1d: 0.04}, "medium"},
		{"elevated drawdown", domain.RiskMetrics{CurrentDrawdown: 0.12}, "medium"},
		{"critical var", domain.RiskMetrics{VaR1d: 0.06}, "high"},
		{"deep drawdown", domain.RiskMetrics{CurrentDrawdown: 0.20}, "high"},
		{"violent volatility", domain.RiskMetrics{Volatility: 0.60}, "high"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, overallRiskLevel(tc.m))
		})
	}
}

func TestTopRiskyPositionsOrdering(t *testing.T) {
	h := newTestHarness(t, "")

	h.engine.tick()

	top := h.engine.topRiskyPositions(2)
	require.Len(t, top, 2)
	assert.GreaterOrEqual(t, top[0].RiskScore, top[1].RiskScore)
}
