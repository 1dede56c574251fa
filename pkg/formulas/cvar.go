package formulas

import (
	"math"
	"sort"
)

// sortFloat64s is a tiny indirection so Percentile in stats.go and the tail
// helpers here share one sort implementation.
func sortFloat64s(data []float64) {
	sort.Float64s(data)
}

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified
// confidence level. CVaR is the expected loss given that the loss exceeds the
// VaR threshold.
//
// Args:
//   - returns: Return observations (negative values are losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses, positive for gains in tail)
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	if len(returns) == 1 {
		return returns[0]
	}

	// Sort returns in ascending order (worst first)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// For 95% confidence we average the worst 5% of returns. The product
	// is rounded before the ceiling so exact boundaries like 100*0.05 do
	// not spill into an extra tail sample through floating-point error.
	tailProbability := 1.0 - confidence
	raw := float64(len(sorted)) * tailProbability
	if rounded := math.Round(raw); math.Abs(raw-rounded) < 1e-9 {
		raw = rounded
	}
	tailCount := int(math.Ceil(raw))

	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	tailReturns := sorted[:tailCount]
	sum := 0.0
	for _, r := range tailReturns {
		sum += r
	}

	return sum / float64(len(tailReturns))
}
