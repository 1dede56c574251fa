// Package alerts turns a metrics sample into prioritized threshold alerts.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
)

// Multiplicative priority components. An alert's priority is
// levelScore x alertScore x riskTypeWeight, clamped to [0, 10].
var (
	levelScores = map[domain.RiskLevel]float64{
		domain.RiskLevelVeryLow:  1,
		domain.RiskLevelLow:      2,
		domain.RiskLevelMedium:   3,
		domain.RiskLevelHigh:     4,
		domain.RiskLevelCritical: 5,
		domain.RiskLevelExtreme:  6,
	}
	alertScores = map[domain.AlertType]float64{
		domain.AlertTypeInfo:      1,
		domain.AlertTypeWarning:   2,
		domain.AlertTypeCritical:  3,
		domain.AlertTypeEmergency: 4,
	}
	riskTypeWeights = map[domain.RiskType]float64{
		domain.RiskTypeDrawdown:      1.0,
		domain.RiskTypeLiquidity:     0.9,
		domain.RiskTypeSystem:        0.9,
		domain.RiskTypeMarket:        0.8,
		domain.RiskTypeLeverage:      0.8,
		domain.RiskTypeVolatility:    0.7,
		domain.RiskTypeConcentration: 0.6,
		domain.RiskTypeCorrelation:   0.5,
		domain.RiskTypeOperational:   0.4,
		domain.RiskTypeRegulatory:    0.3,
	}
)

// Evaluator compares a metrics sample against a threshold set. It is
// stateless; alert lifecycle (active map, history) belongs to the
// monitoring engine.
type Evaluator struct {
	log zerolog.Logger
}

// NewEvaluator builds an evaluator.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log.With().Str("component", "alerts").Logger()}
}

// Evaluate checks every monitored dimension in fixed order and returns
// the resulting alerts, possibly none. Within a dimension the critical
// threshold wins over the warning threshold, so at most one alert is
// raised per dimension per call. positionRisks, when available, is used
// to name the positions driving concentration and liquidity breaches.
func (e *Evaluator) Evaluate(m domain.RiskMetrics, th domain.ThresholdSet, positionRisks []domain.PositionRisk) []domain.RiskAlert {
	var out []domain.RiskAlert
	add := func(a domain.RiskAlert) {
		e.log.Warn().
			Str("risk_type", a.RiskType.String()).
			Str("level", a.Level.String()).
			Float64("current", a.CurrentValue).
			Float64("threshold", a.ThresholdValue).
			Msg(a.Title)
		out = append(out, a)
	}

	// VaR
	if m.VaR1d > th.VaR1dCritical {
		add(newAlert(domain.RiskTypeMarket, domain.RiskLevelCritical, domain.AlertTypeCritical,
			"1-day VaR critical",
			fmt.Sprintf("1-day VaR (%.2f%%) exceeds the critical threshold", m.VaR1d*100),
			m.VaR1d, th.VaR1dCritical,
			[]string{"Reduce exposure", "Increase hedging", "Liquidate risky positions"}, nil))
	} else if m.VaR1d > th.VaR1dWarning {
		add(newAlert(domain.RiskTypeMarket, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"1-day VaR elevated",
			fmt.Sprintf("1-day VaR (%.2f%%) exceeds the warning threshold", m.VaR1d*100),
			m.VaR1d, th.VaR1dWarning,
			[]string{"Monitor closely", "Consider reducing exposure"}, nil))
	}

	// Drawdown
	if m.CurrentDrawdown > th.DrawdownCritical {
		add(newAlert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, domain.AlertTypeEmergency,
			"Drawdown critical",
			fmt.Sprintf("Current drawdown (%.2f%%) breached the critical limit", m.CurrentDrawdown*100),
			m.CurrentDrawdown, th.DrawdownCritical,
			[]string{"Stop trading immediately", "Partial liquidation", "Root-cause review"}, nil))
	} else if m.CurrentDrawdown > th.DrawdownWarning {
		add(newAlert(domain.RiskTypeDrawdown, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"Drawdown elevated",
			fmt.Sprintf("Current drawdown (%.2f%%) exceeds the warning threshold", m.CurrentDrawdown*100),
			m.CurrentDrawdown, th.DrawdownWarning,
			[]string{"Tighten stop losses", "Reduce position sizes"}, nil))
	}

	// Concentration
	if m.ConcentrationHHI > th.ConcentrationHigh {
		add(newAlert(domain.RiskTypeConcentration, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"Excessive concentration",
			fmt.Sprintf("HHI (%.3f) indicates heavy concentration", m.ConcentrationHHI),
			m.ConcentrationHHI, th.ConcentrationHigh,
			[]string{"Diversify the portfolio", "Reduce dominant positions"},
			dominantPositions(positionRisks)))
	}

	// Volatility
	if m.Volatility > th.VolatilityExtreme {
		add(newAlert(domain.RiskTypeVolatility, domain.RiskLevelExtreme, domain.AlertTypeCritical,
			"Extreme volatility",
			fmt.Sprintf("Portfolio volatility (%.2f%%) is extreme", m.Volatility*100),
			m.Volatility, th.VolatilityExtreme,
			[]string{"Reduce position sizes", "Increase rebalancing frequency"}, nil))
	} else if m.Volatility > th.VolatilityHigh {
		add(newAlert(domain.RiskTypeVolatility, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"High volatility",
			fmt.Sprintf("Portfolio volatility (%.2f%%) is elevated", m.Volatility*100),
			m.Volatility, th.VolatilityHigh,
			[]string{"Review position sizing", "Consider hedges"}, nil))
	}

	// Correlation
	if m.CorrelationRisk > th.CorrelationHigh {
		add(newAlert(domain.RiskTypeCorrelation, domain.RiskLevelMedium, domain.AlertTypeWarning,
			"High correlation",
			fmt.Sprintf("Correlation risk (%.2f) is elevated", m.CorrelationRisk),
			m.CorrelationRisk, th.CorrelationHigh,
			[]string{"Seek uncorrelated assets", "Review allocation"}, nil))
	}

	// Liquidity
	if m.LiquidityRisk > th.LiquidityCritical {
		add(newAlert(domain.RiskTypeLiquidity, domain.RiskLevelCritical, domain.AlertTypeCritical,
			"Liquidity risk critical",
			fmt.Sprintf("Liquidity risk (%.2f) is critical", m.LiquidityRisk),
			m.LiquidityRisk, th.LiquidityCritical,
			[]string{"Favor liquid assets", "Reduce illiquid positions"},
			illiquidPositions(positionRisks)))
	}

	// Leverage
	if m.LeverageRatio > th.LeverageMax {
		add(newAlert(domain.RiskTypeLeverage, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"Excessive leverage",
			fmt.Sprintf("Leverage ratio (%.2f) exceeds the maximum", m.LeverageRatio),
			m.LeverageRatio, th.LeverageMax,
			[]string{"Reduce leverage", "Add margin"}, nil))
	}

	// Risk budget
	if m.RiskBudgetUtilization > th.RiskBudgetMax {
		add(newAlert(domain.RiskTypeOperational, domain.RiskLevelHigh, domain.AlertTypeWarning,
			"Risk budget exceeded",
			fmt.Sprintf("Risk budget utilization (%.1f%%) is excessive", m.RiskBudgetUtilization*100),
			m.RiskBudgetUtilization, th.RiskBudgetMax,
			[]string{"Reduce overall exposure", "Review risk allocation"}, nil))
	}

	return out
}

// PriorityScore computes the queueing priority of an alert in [0, 10].
func PriorityScore(riskType domain.RiskType, level domain.RiskLevel, alertType domain.AlertType) float64 {
	score := levelScores[level] * alertScores[alertType] * riskTypeWeights[riskType]
	if score > 10 {
		return 10
	}
	return score
}

func newAlert(riskType domain.RiskType, level domain.RiskLevel, alertType domain.AlertType,
	title, description string, current, threshold float64,
	actions []string, affected []string) domain.RiskAlert {

	impact := current - threshold
	if impact < 0 {
		impact = -impact
	}
	return domain.RiskAlert{
		ID:                      uuid.NewString(),
		Timestamp:               time.Now().UTC(),
		RiskType:                riskType,
		Level:                   level,
		AlertType:               alertType,
		Title:                   title,
		Description:             description,
		CurrentValue:            current,
		ThresholdValue:          threshold,
		SuggestedActions:        actions,
		AutoMitigationAvailable: true,
		PriorityScore:           PriorityScore(riskType, level, alertType),
		AffectedPositions:       affected,
		EstimatedImpact:         impact,
	}
}

// dominantPositions names positions holding more of the portfolio than
// the single-asset limit allows.
func dominantPositions(risks []domain.PositionRisk) []string {
	limit := domain.DefaultPositionLimits().MaxSingleAsset * 100
	var out []string
	for _, r := range risks {
		if r.ConcentrationPct > limit {
			out = append(out, r.Symbol)
		}
	}
	return out
}

// illiquidPositions names positions with a liquidity score in the lower
// half of the scale.
func illiquidPositions(risks []domain.PositionRisk) []string {
	var out []string
	for _, r := range risks {
		if r.LiquidityScore < 0.5 {
			out = append(out, r.Symbol)
		}
	}
	return out
}
