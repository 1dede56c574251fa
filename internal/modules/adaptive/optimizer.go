// Package adaptive recalibrates alert thresholds from observed risk
// history.
package adaptive

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/pkg/formulas"
)

// ErrInsufficientHistory is returned when fewer samples exist than the
// optimizer needs for stable percentile estimates.
var ErrInsufficientHistory = errors.New("insufficient risk history for threshold optimization")

const (
	// Minimum metrics samples before percentiles are trusted.
	MinSamples = 100

	// Exponential smoothing weights: new = oldWeight*old + newWeight*candidate.
	oldWeight = 0.7
	newWeight = 0.3
)

// Optimizer derives candidate thresholds from percentile statistics of
// the metrics history and blends them into the current set.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer builds an optimizer.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{log: log.With().Str("component", "adaptive").Logger()}
}

// Optimize computes a blended threshold set from history. On success it
// returns the new set plus the audit record; thresholds not covered by
// the percentile table are carried over unchanged. With fewer than
// MinSamples entries it returns ErrInsufficientHistory and the input
// set untouched.
func (o *Optimizer) Optimize(current domain.ThresholdSet, history []domain.RiskMetrics) (domain.ThresholdSet, *domain.ThresholdAdjustment, error) {
	if len(history) < MinSamples {
		o.log.Debug().
			Int("samples", len(history)).
			Int("required", MinSamples).
			Msg("skipping threshold optimization")
		return current, nil, ErrInsufficientHistory
	}

	var1d := make([]float64, len(history))
	drawdown := make([]float64, len(history))
	volatility := make([]float64, len(history))
	concentration := make([]float64, len(history))
	for i, m := range history {
		var1d[i] = m.VaR1d
		drawdown[i] = m.CurrentDrawdown
		volatility[i] = m.Volatility
		concentration[i] = m.ConcentrationHHI
	}

	next := current
	next.VaR1dWarning = blend(current.VaR1dWarning, formulas.Percentile(var1d, 0.80))
	next.VaR1dCritical = blend(current.VaR1dCritical, formulas.Percentile(var1d, 0.95))
	next.DrawdownWarning = blend(current.DrawdownWarning, formulas.Percentile(drawdown, 0.85))
	next.DrawdownCritical = blend(current.DrawdownCritical, formulas.Percentile(drawdown, 0.95))
	next.VolatilityHigh = blend(current.VolatilityHigh, formulas.Percentile(volatility, 0.80))
	next.VolatilityExtreme = blend(current.VolatilityExtreme, formulas.Percentile(volatility, 0.95))
	next.ConcentrationHigh = blend(current.ConcentrationHigh, formulas.Percentile(concentration, 0.75))

	adj := &domain.ThresholdAdjustment{
		Timestamp:     time.Now().UTC(),
		OldThresholds: current,
		NewThresholds: next,
		SampleSize:    len(history),
	}

	o.log.Info().
		Int("samples", len(history)).
		Float64("var_1d_warning", next.VaR1dWarning).
		Float64("var_1d_critical", next.VaR1dCritical).
		Msg("thresholds optimized")
	return next, adj, nil
}

func blend(old, candidate float64) float64 {
	return oldWeight*old + newWeight*candidate
}
