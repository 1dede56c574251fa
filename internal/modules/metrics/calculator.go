package metrics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/pkg/formulas"
)

const (
	// Risk-free rate used for the Sharpe and Sortino ratios.
	riskFreeRate = 0.02

	// Worst single-day shock assumed when scoring stress capacity
	// from portfolio beta.
	worstCaseShock = 0.50
)

// Calculator turns a portfolio snapshot plus recorded value history into a
// full RiskMetrics sample. It never fails: inputs it cannot work with
// degrade field by field to safe defaults, recorded in SimulatedFields.
type Calculator struct {
	stats  SymbolStatsProvider
	trials int
}

// NewCalculator builds a calculator running the given number of Monte
// Carlo trials per VaR estimate.
func NewCalculator(stats SymbolStatsProvider, trials int) *Calculator {
	if trials <= 0 {
		trials = 1000
	}
	return &Calculator{stats: stats, trials: trials}
}

// Calculate computes the full metrics set for a snapshot. valueHistory is
// the recorded portfolio value series, oldest first, and should already
// include the snapshot's own value.
func (c *Calculator) Calculate(snap *domain.PortfolioSnapshot, valueHistory []float64) domain.RiskMetrics {
	now := time.Now().UTC()
	if snap == nil || len(snap.Positions) == 0 || snap.TotalValue <= 0 {
		return emptyPortfolioMetrics(now)
	}

	m := domain.RiskMetrics{Timestamp: now}
	simulated := map[string]bool{}

	totalMV := snap.TotalMarketValue()
	if totalMV <= 0 {
		return emptyPortfolioMetrics(now)
	}

	weights := make([]float64, len(snap.Positions))
	vols := make([]float64, len(snap.Positions))
	for i, pos := range snap.Positions {
		weights[i] = math.Abs(pos.MarketValue) / totalMV
		vol, observed := c.stats.Volatility(pos.Symbol)
		vols[i] = vol
		if !observed {
			simulated["portfolio_volatility"] = true
		}
	}

	// Monte Carlo VaR. Each trial draws an independent daily return per
	// position from a normal with that position's daily volatility and
	// aggregates by weight. The 7-day figure scales the same trial set by
	// the square root of the horizon.
	trials := c.runTrials(weights, vols)
	m.VaR1d = varFromTrials(trials, 0.95, 1)
	m.VaR7d = varFromTrials(trials, 0.95, 7)

	// Conditional VaR as a fixed multiple of VaR. The Monte Carlo trials
	// feed the 99% tail estimate below instead.
	m.CVaR = 1.5 * m.VaR1d
	m.TailRisk = math.Abs(formulas.CalculateCVaR(trials, 0.99))

	dd := formulas.CalculateDrawdownMetrics(valueHistory)
	if dd != nil {
		m.MaxDrawdown = dd.MaxDrawdown
		m.CurrentDrawdown = dd.CurrentDrawdown
	} else {
		simulated["max_drawdown"] = true
		simulated["current_drawdown"] = true
	}

	for i, pos := range snap.Positions {
		beta, observed := c.stats.Beta(pos.Symbol)
		m.Beta += weights[i] * beta
		if !observed {
			simulated["portfolio_beta"] = true
		}
		m.Volatility += weights[i] * vols[i]

		corr, observed := c.stats.CorrelationToPortfolio(pos.Symbol)
		m.CorrelationRisk += weights[i] * math.Abs(corr)
		if !observed {
			simulated["correlation_risk"] = true
		}

		liq, observed := c.stats.LiquidityScore(pos.Symbol)
		m.LiquidityRisk += weights[i] * (1 - liq)
		if !observed {
			simulated["liquidity_risk"] = true
		}
	}

	m.ConcentrationHHI = herfindahl(weights)
	m.DiversificationRatio = 1 - m.ConcentrationHHI

	c.fillRatios(&m, valueHistory, simulated)

	// No margin account data flows through the snapshot, so leverage and
	// margin stay at their unlevered defaults.
	m.LeverageRatio = 1.0
	m.MarginUtilization = 0.0
	simulated["leverage_ratio"] = true
	simulated["margin_utilization"] = true

	m.RiskBudgetUtilization = formulas.Clamp(m.VaR1d/0.05, 0, 1)
	m.StressTestScore = formulas.Clamp(100-worstCaseShock*m.Beta*100, 0, 100)

	m.SimulatedFields = sortedKeys(simulated)
	return m
}

func (c *Calculator) runTrials(weights, vols []float64) []float64 {
	trials := make([]float64, c.trials)
	dists := make([]distuv.Normal, len(vols))
	for i, vol := range vols {
		dists[i] = distuv.Normal{
			Mu:    0,
			Sigma: vol / math.Sqrt(formulas.TradingDaysPerYear),
		}
	}
	for t := range trials {
		var total float64
		for i, w := range weights {
			total += w * dists[i].Rand()
		}
		trials[t] = total
	}
	return trials
}

func varFromTrials(trials []float64, confidence float64, horizonDays float64) float64 {
	if len(trials) == 0 {
		return 0
	}
	return math.Abs(formulas.Percentile(trials, 1-confidence)) * math.Sqrt(horizonDays)
}

func (c *Calculator) fillRatios(m *domain.RiskMetrics, valueHistory []float64, simulated map[string]bool) {
	returns := formulas.CalculateReturns(valueHistory)

	if sharpe := formulas.CalculateSharpeRatio(returns, riskFreeRate, formulas.TradingDaysPerYear); sharpe != nil {
		m.SharpeRatio = *sharpe
	} else {
		m.SharpeRatio = 1.0
		simulated["sharpe_ratio"] = true
	}

	if sortino := formulas.CalculateSortinoRatio(returns, riskFreeRate, 0, formulas.TradingDaysPerYear); sortino != nil {
		m.SortinoRatio = *sortino
	} else {
		m.SortinoRatio = 1.2
		simulated["sortino_ratio"] = true
	}

	if calmar := formulas.CalculateCalmarRatio(returns, m.MaxDrawdown, formulas.TradingDaysPerYear); calmar != nil {
		m.CalmarRatio = *calmar
	} else {
		m.CalmarRatio = 1.0
		simulated["calmar_ratio"] = true
	}
}

// herfindahl is the Herfindahl-Hirschman concentration index of the
// weight vector. 1/n for equal weights, 1.0 for a single position.
func herfindahl(weights []float64) float64 {
	var hhi float64
	for _, w := range weights {
		hhi += w * w
	}
	return hhi
}

// emptyPortfolioMetrics is the documented safe default for a portfolio
// with no priced positions. Every statistical field is marked simulated.
func emptyPortfolioMetrics(ts time.Time) domain.RiskMetrics {
	return domain.RiskMetrics{
		Timestamp:            ts,
		Beta:                 1.0,
		SharpeRatio:          1.0,
		SortinoRatio:         1.2,
		CalmarRatio:          1.0,
		CorrelationRisk:      0.60,
		LiquidityRisk:        0.50,
		LeverageRatio:        1.0,
		DiversificationRatio: 1.0,
		TailRisk:             0.06,
		StressTestScore:      100,
		SimulatedFields: []string{
			"calmar_ratio", "correlation_risk", "leverage_ratio",
			"liquidity_risk", "margin_utilization", "portfolio_beta",
			"portfolio_var_1d", "portfolio_var_7d", "sharpe_ratio",
			"sortino_ratio", "tail_risk",
		},
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
