package metrics

import (
	"math"
	"sync"

	"github.com/markcheno/go-talib"

	"github.com/aristath/bastion/pkg/formulas"
)

// SymbolStatsProvider supplies per-symbol risk statistics. The boolean
// return reports whether the value was estimated from observed history
// (true) or taken from a static fallback table (false).
type SymbolStatsProvider interface {
	Volatility(symbol string) (float64, bool)
	Beta(symbol string) (float64, bool)
	CorrelationToPortfolio(symbol string) (float64, bool)
	LiquidityScore(symbol string) (float64, bool)
}

// PriceSource returns recent daily closing prices for a symbol,
// oldest first. An empty slice means no history is available.
type PriceSource interface {
	DailyCloses(symbol string, limit int) ([]float64, error)
}

// ValueSource returns recent portfolio total values, oldest first.
type ValueSource interface {
	RecentValues(limit int) []float64
}

// Static per-symbol fallbacks used when no price history exists yet.
// Unknown symbols degrade to the conservative defaults below.
var (
	volatilityFallback = map[string]float64{
		"BTC": 0.60, "ETH": 0.70, "ADA": 0.80,
		"DOT": 0.75, "LINK": 0.85, "UNI": 0.90,
	}
	betaFallback = map[string]float64{
		"BTC": 1.0, "ETH": 1.2, "ADA": 1.5,
		"DOT": 1.4, "LINK": 1.3, "UNI": 1.6,
	}
	correlationFallback = map[string]float64{
		"BTC": 0.70, "ETH": 0.85, "ADA": 0.75,
		"DOT": 0.80, "LINK": 0.70, "UNI": 0.65,
	}
	liquidityFallback = map[string]float64{
		"BTC": 0.95, "ETH": 0.90, "ADA": 0.80,
		"DOT": 0.75, "LINK": 0.70, "UNI": 0.65,
	}
)

const (
	defaultVolatility  = 0.50
	defaultBeta        = 1.0
	defaultCorrelation = 0.60
	defaultLiquidity   = 0.50

	// Minimum observations before history-based estimates replace
	// the fallback tables.
	minHistoryPoints = 20
)

// HistoryStats estimates symbol statistics from stored price history,
// falling back to static tables when history is too thin. Estimates are
// cached per symbol and can be invalidated when new prices arrive.
type HistoryStats struct {
	prices PriceSource
	values ValueSource

	mu    sync.Mutex
	cache map[string]symbolEstimate
}

type symbolEstimate struct {
	volatility  float64
	beta        float64
	correlation float64
	observed    bool
}

// NewHistoryStats builds a provider backed by the given price history.
// values may be nil, in which case beta and correlation always come
// from the fallback tables.
func NewHistoryStats(prices PriceSource, values ValueSource) *HistoryStats {
	return &HistoryStats{
		prices: prices,
		values: values,
		cache:  make(map[string]symbolEstimate),
	}
}

// Invalidate drops the cached estimate for a symbol, forcing a
// re-estimate on next access.
func (h *HistoryStats) Invalidate(symbol string) {
	h.mu.Lock()
	delete(h.cache, symbol)
	h.mu.Unlock()
}

func (h *HistoryStats) Volatility(symbol string) (float64, bool) {
	if est, ok := h.estimate(symbol); ok {
		return est.volatility, true
	}
	return lookup(volatilityFallback, symbol, defaultVolatility), false
}

func (h *HistoryStats) Beta(symbol string) (float64, bool) {
	if est, ok := h.estimate(symbol); ok && h.values != nil {
		return est.beta, true
	}
	return lookup(betaFallback, symbol, defaultBeta), false
}

func (h *HistoryStats) CorrelationToPortfolio(symbol string) (float64, bool) {
	if est, ok := h.estimate(symbol); ok && h.values != nil {
		return est.correlation, true
	}
	return lookup(correlationFallback, symbol, defaultCorrelation), false
}

// LiquidityScore has no market-depth feed backing it, so it is always
// served from the fallback table.
func (h *HistoryStats) LiquidityScore(symbol string) (float64, bool) {
	return lookup(liquidityFallback, symbol, defaultLiquidity), false
}

func (h *HistoryStats) estimate(symbol string) (symbolEstimate, bool) {
	h.mu.Lock()
	if est, ok := h.cache[symbol]; ok {
		h.mu.Unlock()
		return est, est.observed
	}
	h.mu.Unlock()

	est := h.computeEstimate(symbol)
	h.mu.Lock()
	h.cache[symbol] = est
	h.mu.Unlock()
	return est, est.observed
}

func (h *HistoryStats) computeEstimate(symbol string) symbolEstimate {
	if h.prices == nil {
		return symbolEstimate{}
	}
	closes, err := h.prices.DailyCloses(symbol, 252)
	if err != nil || len(closes) < minHistoryPoints {
		return symbolEstimate{}
	}

	// Rate-of-change over one period, in percent. First element is a
	// warm-up zero and is skipped.
	roc := talib.Roc(closes, 1)
	returns := make([]float64, 0, len(roc)-1)
	for _, r := range roc[1:] {
		returns = append(returns, r/100)
	}
	if len(returns) < 2 {
		return symbolEstimate{}
	}

	est := symbolEstimate{
		volatility: formulas.AnnualizedVolatility(returns),
		beta:       lookup(betaFallback, symbol, defaultBeta),
		correlation: lookup(
			correlationFallback, symbol, defaultCorrelation),
		observed: true,
	}

	if h.values != nil {
		portValues := h.values.RecentValues(len(closes))
		portReturns := formulas.CalculateReturns(portValues)
		n := len(returns)
		if len(portReturns) < n {
			n = len(portReturns)
		}
		if n >= minHistoryPoints {
			sym := returns[len(returns)-n:]
			port := portReturns[len(portReturns)-n:]
			corr := formulas.Correlation(sym, port)
			est.correlation = formulas.Clamp(corr, -1, 1)
			if pv := formulas.StdDev(port); pv > 0 {
				est.beta = corr * formulas.StdDev(sym) / pv
			}
		}
	}

	if est.volatility <= 0 || math.IsNaN(est.volatility) {
		return symbolEstimate{}
	}
	return est
}

func lookup(table map[string]float64, symbol string, def float64) float64 {
	if v, ok := table[symbol]; ok {
		return v
	}
	return def
}
