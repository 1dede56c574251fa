// Package stress applies shock scenarios to a portfolio snapshot and
// scores its resilience.
package stress

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/internal/modules/metrics"
	"github.com/aristath/bastion/pkg/formulas"
)

// DefaultScenarios returns the standard shock set used when the caller
// supplies none.
func DefaultScenarios() []domain.StressScenario {
	return []domain.StressScenario{
		{
			Name:        "Market Crash",
			Description: "Broad market decline of 30%",
			MarketShock: -0.30,
		},
		{
			Name:                 "Volatility Spike",
			Description:          "Volatility triples overnight",
			VolatilityMultiplier: 3.0,
		},
		{
			Name:           "Liquidity Crisis",
			Description:    "Severe liquidity freeze across venues",
			LiquidityShock: 0.8,
		},
		{
			Name:        "Flash Crash",
			Description: "Sudden 50% flash crash",
			MarketShock: -0.50,
		},
	}
}

// Engine runs stress scenarios against portfolio snapshots.
type Engine struct {
	log   zerolog.Logger
	stats metrics.SymbolStatsProvider
}

// NewEngine builds a stress engine using the given symbol statistics.
func NewEngine(log zerolog.Logger, stats metrics.SymbolStatsProvider) *Engine {
	return &Engine{
		log:   log.With().Str("component", "stress").Logger(),
		stats: stats,
	}
}

// Run applies each scenario to the snapshot and aggregates a summary.
// An empty scenario list means the default set.
func (e *Engine) Run(snap *domain.PortfolioSnapshot, scenarios []domain.StressScenario) domain.StressTestResult {
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios()
	}

	result := domain.StressTestResult{
		Timestamp: time.Now().UTC(),
		Scenarios: make([]domain.ScenarioResult, 0, len(scenarios)),
	}
	if snap != nil {
		result.BaseValue = snap.TotalValue
	}

	var sumImpact, maxImpact float64
	for _, sc := range scenarios {
		sr := e.runScenario(snap, sc)
		result.Scenarios = append(result.Scenarios, sr)

		impact := math.Abs(sr.PercentageImpact)
		sumImpact += impact
		if impact > maxImpact {
			maxImpact = impact
		}
	}

	result.Summary = domain.StressSummary{
		AverageImpact:   sumImpact / float64(len(scenarios)),
		MaximumImpact:   maxImpact,
		ResistanceScore: math.Max(0, 100-maxImpact),
		RiskLevel:       riskBand(maxImpact),
	}

	e.log.Info().
		Float64("max_impact_pct", maxImpact).
		Float64("resistance", result.Summary.ResistanceScore).
		Msg("stress test complete")
	return result
}

func (e *Engine) runScenario(snap *domain.PortfolioSnapshot, sc domain.StressScenario) domain.ScenarioResult {
	sr := domain.ScenarioResult{Scenario: sc}
	if snap == nil || snap.TotalValue <= 0 {
		return sr
	}

	stressed := snap.TotalValue
	var affected []string

	if sc.MarketShock != 0 {
		stressed *= 1 + sc.MarketShock
		for _, pos := range snap.Positions {
			affected = append(affected, pos.Symbol)
		}
	}

	if sc.VolatilityMultiplier > 1 {
		loss := e.volatilitySpikeLoss(snap, sc.VolatilityMultiplier)
		stressed -= snap.TotalValue * loss
		for _, pos := range snap.Positions {
			vol, _ := e.stats.Volatility(pos.Symbol)
			if vol > 0.5 {
				affected = append(affected, pos.Symbol)
			}
		}
	}

	if sc.LiquidityShock > 0 {
		loss, hit := e.liquidityFreezeLoss(snap, sc.LiquidityShock)
		stressed -= loss
		affected = append(affected, hit...)
	}

	if stressed < 0 {
		stressed = 0
	}

	sr.StressedValue = stressed
	sr.AbsoluteImpact = stressed - snap.TotalValue
	sr.PercentageImpact = sr.AbsoluteImpact / snap.TotalValue * 100
	sr.RecoveryTimeEstimate = math.Abs(sr.PercentageImpact) * 2
	sr.PositionsAffected = dedupe(affected)
	return sr
}

// volatilitySpikeLoss converts a volatility multiple into a one-day
// expected loss fraction. The extra volatility is expressed as a daily
// move of the market-value-weighted portfolio volatility.
func (e *Engine) volatilitySpikeLoss(snap *domain.PortfolioSnapshot, multiplier float64) float64 {
	totalMV := snap.TotalMarketValue()
	if totalMV <= 0 {
		return 0
	}
	var weightedVol float64
	for _, pos := range snap.Positions {
		vol, _ := e.stats.Volatility(pos.Symbol)
		weightedVol += math.Abs(pos.MarketValue) / totalMV * vol
	}
	dailyVol := weightedVol / math.Sqrt(formulas.TradingDaysPerYear)
	return formulas.Clamp(dailyVol*(multiplier-1), 0, 1)
}

// liquidityFreezeLoss estimates the haircut from a forced exit under a
// liquidity freeze of the given severity. Illiquid positions lose up to
// half their value at full severity.
func (e *Engine) liquidityFreezeLoss(snap *domain.PortfolioSnapshot, severity float64) (float64, []string) {
	var loss float64
	var affected []string
	for _, pos := range snap.Positions {
		liq, _ := e.stats.LiquidityScore(pos.Symbol)
		haircut := severity * (1 - liq) * 0.5
		loss += math.Abs(pos.MarketValue) * haircut
		if liq < 0.5 {
			affected = append(affected, pos.Symbol)
		}
	}
	return loss, affected
}

func riskBand(maxImpact float64) string {
	switch {
	case maxImpact < 10:
		return "low"
	case maxImpact < 20:
		return "medium"
	case maxImpact < 40:
		return "high"
	default:
		return "critical"
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
