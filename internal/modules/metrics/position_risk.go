package metrics

import (
	"math"
	"sync"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/pkg/formulas"
)

// Risk score component weights. They sum to 1.
const (
	weightVolatility    = 0.25
	weightBeta          = 0.15
	weightConcentration = 0.25
	weightIlliquidity   = 0.20
	weightVaR           = 0.15
)

// PositionRiskCalculator decomposes portfolio risk position by position.
// Results are cached per symbol until Invalidate is called, so repeated
// dashboard reads between ticks do not recompute.
type PositionRiskCalculator struct {
	stats SymbolStatsProvider

	mu    sync.Mutex
	cache map[string]domain.PositionRisk
}

// NewPositionRiskCalculator builds a per-position risk calculator.
func NewPositionRiskCalculator(stats SymbolStatsProvider) *PositionRiskCalculator {
	return &PositionRiskCalculator{
		stats: stats,
		cache: make(map[string]domain.PositionRisk),
	}
}

// Invalidate clears the cache, typically at the start of a tick when a
// fresh snapshot arrives.
func (p *PositionRiskCalculator) Invalidate() {
	p.mu.Lock()
	p.cache = make(map[string]domain.PositionRisk)
	p.mu.Unlock()
}

// CalculateAll evaluates every position in the snapshot.
func (p *PositionRiskCalculator) CalculateAll(snap *domain.PortfolioSnapshot) []domain.PositionRisk {
	if snap == nil || len(snap.Positions) == 0 {
		return nil
	}
	totalMV := snap.TotalMarketValue()
	risks := make([]domain.PositionRisk, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		risks = append(risks, p.Calculate(pos, totalMV))
	}
	return risks
}

// Calculate evaluates a single position against the portfolio total.
func (p *PositionRiskCalculator) Calculate(pos domain.Position, totalMarketValue float64) domain.PositionRisk {
	p.mu.Lock()
	if cached, ok := p.cache[pos.Symbol]; ok {
		p.mu.Unlock()
		return cached
	}
	p.mu.Unlock()

	vol, _ := p.stats.Volatility(pos.Symbol)
	beta, _ := p.stats.Beta(pos.Symbol)
	corr, _ := p.stats.CorrelationToPortfolio(pos.Symbol)
	liq, _ := p.stats.LiquidityScore(pos.Symbol)

	weight := 0.0
	if totalMarketValue > 0 {
		weight = math.Abs(pos.MarketValue) / totalMarketValue
	}

	risk := domain.PositionRisk{
		Symbol:               pos.Symbol,
		PositionSize:         pos.Size,
		MarketValue:          pos.MarketValue,
		UnrealizedPnL:        pos.UnrealizedPnL,
		VaRContribution:      weight * vol * 0.05,
		Volatility:           vol,
		Beta:                 beta,
		CorrelationPortfolio: corr,
		LiquidityScore:       liq,
		ConcentrationPct:     weight * 100,
		StopLossLevel:        pos.StopLoss,
		TakeProfitLevel:      pos.TakeProfit,
		MaxLossAmount:        maxLoss(pos, vol),
		DaysToLiquidate:      daysToLiquidate(pos, liq),
	}
	risk.RiskScore = riskScore(risk, weight)

	p.mu.Lock()
	p.cache[pos.Symbol] = risk
	p.mu.Unlock()
	return risk
}

// riskScore is a 0..100 composite of the position's risk drivers.
func riskScore(r domain.PositionRisk, weight float64) float64 {
	score := weightVolatility*formulas.Clamp(r.Volatility, 0, 1) +
		weightBeta*formulas.Clamp(r.Beta/2, 0, 1) +
		weightConcentration*formulas.Clamp(weight*2, 0, 1) +
		weightIlliquidity*(1-formulas.Clamp(r.LiquidityScore, 0, 1)) +
		weightVaR*formulas.Clamp(r.VaRContribution*20, 0, 1)
	return formulas.Clamp(score*100, 0, 100)
}

// maxLoss is the stop-loss distance when a stop exists, otherwise a
// three-sigma move against the position.
func maxLoss(pos domain.Position, vol float64) float64 {
	if pos.StopLoss != nil && pos.Size != 0 {
		currentPrice := math.Abs(pos.MarketValue / pos.Size)
		if currentPrice > 0 {
			lossPct := math.Abs(currentPrice-*pos.StopLoss) / currentPrice
			return math.Abs(pos.MarketValue) * lossPct
		}
	}
	return math.Abs(pos.MarketValue) * vol * 3
}

// daysToLiquidate estimates an orderly exit horizon from the liquidity
// score and the raw position size. Floors at a tenth of a day.
func daysToLiquidate(pos domain.Position, liq float64) float64 {
	sizePenalty := math.Min(5, math.Abs(pos.Size)/1000)
	return math.Max(0.1, (1-liq)*10+sizePenalty)
}
