package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bastion/internal/domain"
)

func TestPositionRiskScoreBounds(t *testing.T) {
	cases := []struct {
		name  string
		stats *stubStats
	}{
		{"calm", &stubStats{vol: 0.1, beta: 0.5, corr: 0.2, liq: 0.95}},
		{"extreme", &stubStats{vol: 5.0, beta: 4.0, corr: 1.0, liq: 0.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calc := NewPositionRiskCalculator(tc.stats)
			risk := calc.Calculate(domain.Position{Symbol: "BTC", Size: 1, MarketValue: 5000}, 10000)

			assert.GreaterOrEqual(t, risk.RiskScore, 0.0)
			assert.LessOrEqual(t, risk.RiskScore, 100.0)
		})
	}
}

func TestPositionRiskMaxLossWithStop(t *testing.T) {
	calc := NewPositionRiskCalculator(&stubStats{vol: 0.6, liq: 0.9})

	stop := 45000.0
	risk := calc.Calculate(domain.Position{
		Symbol:      "BTC",
		Size:        0.1,
		MarketValue: 5000, // price 50000
		StopLoss:    &stop,
	}, 10000)

	// Stop 10% below entry on a 5000 position.
	assert.InDelta(t, 500.0, risk.MaxLossAmount, 1e-9)
}

func TestPositionRiskMaxLossWithoutStop(t *testing.T) {
	calc := NewPositionRiskCalculator(&stubStats{vol: 0.6, liq: 0.9})

	risk := calc.Calculate(domain.Position{Symbol: "ETH", Size: 2, MarketValue: 5000}, 10000)

	// Three-sigma move at 60% volatility.
	assert.InDelta(t, 5000*0.6*3, risk.MaxLossAmount, 1e-9)
}

func TestPositionRiskDaysToLiquidate(t *testing.T) {
	calc := NewPositionRiskCalculator(&stubStats{vol: 0.5, liq: 1.0})

	// Perfect liquidity and a tiny size still floors at a tenth of a day.
	risk := calc.Calculate(domain.Position{Symbol: "BTC", Size: 0.01, MarketValue: 500}, 1000)
	assert.InDelta(t, 0.1, risk.DaysToLiquidate, 1e-9)

	// Low liquidity dominates.
	calc = NewPositionRiskCalculator(&stubStats{vol: 0.5, liq: 0.2})
	risk = calc.Calculate(domain.Position{Symbol: "ADA", Size: 100, MarketValue: 50}, 1000)
	assert.InDelta(t, (1-0.2)*10+0.1, risk.DaysToLiquidate, 1e-9)
}

func TestPositionRiskVaRContribution(t *testing.T) {
	calc := NewPositionRiskCalculator(&stubStats{vol: 0.8, liq: 0.9})

	risk := calc.Calculate(domain.Position{Symbol: "DOT", Size: 10, MarketValue: 2500}, 10000)

	assert.InDelta(t, 0.25*0.8*0.05, risk.VaRContribution, 1e-9)
	assert.InDelta(t, 25.0, risk.ConcentrationPct, 1e-9)
}

func TestPositionRiskCacheUntilInvalidate(t *testing.T) {
	stats := &stubStats{vol: 0.5, beta: 1.0, corr: 0.5, liq: 0.9}
	calc := NewPositionRiskCalculator(stats)

	pos := domain.Position{Symbol: "BTC", Size: 1, MarketValue: 5000}
	first := calc.Calculate(pos, 10000)

	// Changed stats are not picked up while the cache holds the symbol.
	stats.vol = 2.0
	cached := calc.Calculate(pos, 10000)
	require.Equal(t, first.Volatility, cached.Volatility)

	calc.Invalidate()
	fresh := calc.Calculate(pos, 10000)
	assert.InDelta(t, 2.0, fresh.Volatility, 1e-9)
}

func TestPositionRiskCalculateAll(t *testing.T) {
	calc := NewPositionRiskCalculator(&stubStats{vol: 0.5, beta: 1.0, corr: 0.5, liq: 0.9})

	risks := calc.CalculateAll(testSnapshot())
	require.Len(t, risks, 3)
	assert.Equal(t, "BTC", risks[0].Symbol)

	assert.Nil(t, calc.CalculateAll(nil))
	assert.Nil(t, calc.CalculateAll(&domain.PortfolioSnapshot{}))
}
