package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bastion/internal/domain"
)

// stubStats serves fixed statistics, optionally claiming they were
// observed from history.
type stubStats struct {
	vol      float64
	beta     float64
	corr     float64
	liq      float64
	observed bool
}

func (s *stubStats) Volatility(string) (float64, bool)             { return s.vol, s.observed }
func (s *stubStats) Beta(string) (float64, bool)                   { return s.beta, s.observed }
func (s *stubStats) CorrelationToPortfolio(string) (float64, bool) { return s.corr, s.observed }
func (s *stubStats) LiquidityScore(string) (float64, bool)         { return s.liq, s.observed }

func testSnapshot() *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		Timestamp:  time.Now().UTC(),
		TotalValue: 10000,
		Positions: []domain.Position{
			{Symbol: "BTC", Size: 0.1, MarketValue: 4000},
			{Symbol: "ETH", Size: 2.0, MarketValue: 3000},
			{Symbol: "ADA", Size: 1000, MarketValue: 1000},
		},
	}
}

func TestCalculateVaRIsNonNegative(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.6, beta: 1.0, corr: 0.7, liq: 0.9, observed: true}, 1000)
	m := calc.Calculate(testSnapshot(), nil)

	assert.GreaterOrEqual(t, m.VaR1d, 0.0)
	assert.GreaterOrEqual(t, m.VaR7d, 0.0)
}

func TestCalculateVaRHorizonScaling(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.6, beta: 1.0, corr: 0.7, liq: 0.9, observed: true}, 1000)
	m := calc.Calculate(testSnapshot(), nil)

	assert.InDelta(t, m.VaR1d*math.Sqrt(7), m.VaR7d, 1e-9)
}

func TestCalculateVaRGrowsWithVolatility(t *testing.T) {
	// Averaged over several runs so Monte Carlo noise cannot flip the
	// ordering.
	avgVaR := func(vol float64) float64 {
		calc := NewCalculator(&stubStats{vol: vol, beta: 1.0, corr: 0.6, liq: 0.9, observed: true}, 2000)
		var sum float64
		for i := 0; i < 5; i++ {
			sum += calc.Calculate(testSnapshot(), nil).VaR1d
		}
		return sum / 5
	}

	assert.Greater(t, avgVaR(0.9), avgVaR(0.1))
}

func TestCalculateCVaRMultiple(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.6, beta: 1.0, corr: 0.7, liq: 0.9, observed: true}, 1000)
	m := calc.Calculate(testSnapshot(), nil)

	assert.InDelta(t, 1.5*m.VaR1d, m.CVaR, 1e-9)
}

func TestCalculateConcentration(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.5, beta: 1.0, corr: 0.6, liq: 0.8, observed: true}, 100)

	single := &domain.PortfolioSnapshot{
		Timestamp:  time.Now().UTC(),
		TotalValue: 5000,
		Positions:  []domain.Position{{Symbol: "BTC", Size: 0.1, MarketValue: 5000}},
	}
	m := calc.Calculate(single, nil)
	assert.InDelta(t, 1.0, m.ConcentrationHHI, 1e-9)
	assert.InDelta(t, 0.0, m.DiversificationRatio, 1e-9)

	// Equal weights over 4 positions give HHI = 1/4.
	equal := &domain.PortfolioSnapshot{
		Timestamp:  time.Now().UTC(),
		TotalValue: 4000,
		Positions: []domain.Position{
			{Symbol: "BTC", Size: 1, MarketValue: 1000},
			{Symbol: "ETH", Size: 1, MarketValue: 1000},
			{Symbol: "ADA", Size: 1, MarketValue: 1000},
			{Symbol: "DOT", Size: 1, MarketValue: 1000},
		},
	}
	m = calc.Calculate(equal, nil)
	assert.InDelta(t, 0.25, m.ConcentrationHHI, 1e-9)
}

func TestCalculateWeightedAverages(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.6, beta: 1.2, corr: 0.7, liq: 0.8, observed: true}, 100)
	m := calc.Calculate(testSnapshot(), nil)

	// Uniform per-symbol stats make the weighted averages equal the
	// per-symbol value.
	assert.InDelta(t, 0.6, m.Volatility, 1e-9)
	assert.InDelta(t, 1.2, m.Beta, 1e-9)
	assert.InDelta(t, 0.7, m.CorrelationRisk, 1e-9)
	assert.InDelta(t, 0.2, m.LiquidityRisk, 1e-9)
}

func TestCalculateDrawdownFromValueHistory(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.5, beta: 1.0, corr: 0.6, liq: 0.8, observed: true}, 100)
	values := []float64{10000, 12000, 9000, 10000}
	m := calc.Calculate(testSnapshot(), values)

	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 1.0/6.0, m.CurrentDrawdown, 1e-9)
	assert.NotContains(t, m.SimulatedFields, "max_drawdown")
}

func TestCalculateEmptyPortfolioDefaults(t *testing.T) {
	calc := NewCalculator(&stubStats{}, 100)

	for _, snap := range []*domain.PortfolioSnapshot{
		nil,
		{TotalValue: 0},
		{TotalValue: 1000, Positions: nil},
	} {
		m := calc.Calculate(snap, nil)

		assert.Equal(t, 0.0, m.VaR1d)
		assert.Equal(t, 1.0, m.Beta)
		assert.Equal(t, 1.0, m.DiversificationRatio)
		assert.Equal(t, 100.0, m.StressTestScore)
		assert.NotEmpty(t, m.SimulatedFields)
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestCalculateMarksFallbackFieldsSimulated(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.5, beta: 1.0, corr: 0.6, liq: 0.5, observed: false}, 100)
	m := calc.Calculate(testSnapshot(), nil)

	assert.Contains(t, m.SimulatedFields, "portfolio_volatility")
	assert.Contains(t, m.SimulatedFields, "portfolio_beta")
	assert.Contains(t, m.SimulatedFields, "correlation_risk")
	assert.Contains(t, m.SimulatedFields, "liquidity_risk")
	assert.Contains(t, m.SimulatedFields, "sharpe_ratio")
}

func TestCalculateRiskBudgetUtilizationBounds(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 3.0, beta: 1.0, corr: 0.6, liq: 0.5, observed: true}, 1000)
	m := calc.Calculate(testSnapshot(), nil)

	require.GreaterOrEqual(t, m.RiskBudgetUtilization, 0.0)
	require.LessOrEqual(t, m.RiskBudgetUtilization, 1.0)
}

func TestCalculateMetricsAlwaysComplete(t *testing.T) {
	calc := NewCalculator(&stubStats{vol: 0.6, beta: 1.0, corr: 0.7, liq: 0.9, observed: true}, 500)
	m := calc.Calculate(testSnapshot(), []float64{10000, 10100, 9900})

	// Every numeric field must carry a finite value.
	for name, v := range map[string]float64{
		"var_1d":       m.VaR1d,
		"var_7d":       m.VaR7d,
		"cvar":         m.CVaR,
		"volatility":   m.Volatility,
		"beta":         m.Beta,
		"sharpe":       m.SharpeRatio,
		"sortino":      m.SortinoRatio,
		"calmar":       m.CalmarRatio,
		"hhi":          m.ConcentrationHHI,
		"correlation":  m.CorrelationRisk,
		"liquidity":    m.LiquidityRisk,
		"leverage":     m.LeverageRatio,
		"risk_budget":  m.RiskBudgetUtilization,
		"tail_risk":    m.TailRisk,
		"stress_score": m.StressTestScore,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "field %s is not finite", name)
	}
}
