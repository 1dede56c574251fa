package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel grades the severity of an observed risk condition.
type RiskLevel int

const (
	RiskLevelVeryLow RiskLevel = iota
	RiskLevelLow
	RiskLevelMedium
	RiskLevelHigh
	RiskLevelCritical
	RiskLevelExtreme
)

var riskLevelNames = [...]string{"very_low", "low", "medium", "high", "critical", "extreme"}

func (l RiskLevel) String() string {
	if l < RiskLevelVeryLow || l > RiskLevelExtreme {
		return "unknown"
	}
	return riskLevelNames[l]
}

// MarshalJSON encodes the level as its wire name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a wire name back into a level.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range riskLevelNames {
		if name == s {
			*l = RiskLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", s)
}

// RiskType identifies the dimension a risk condition belongs to. The set is
// closed: the mitigation action table and the priority weights switch over it
// exhaustively.
type RiskType int

const (
	RiskTypeMarket RiskType = iota
	RiskTypeLiquidity
	RiskTypeVolatility
	RiskTypeConcentration
	RiskTypeCorrelation
	RiskTypeDrawdown
	RiskTypeLeverage
	RiskTypeOperational
	RiskTypeSystem
	RiskTypeRegulatory
)

var riskTypeNames = [...]string{
	"market_risk", "liquidity_risk", "volatility_risk", "concentration_risk",
	"correlation_risk", "drawdown_risk", "leverage_risk", "operational_risk",
	"system_risk", "regulatory_risk",
}

func (t RiskType) String() string {
	if t < RiskTypeMarket || t > RiskTypeRegulatory {
		return "unknown"
	}
	return riskTypeNames[t]
}

// MarshalJSON encodes the type as its wire name.
func (t RiskType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a wire name back into a type.
func (t *RiskType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range riskTypeNames {
		if name == s {
			*t = RiskType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown risk type %q", s)
}

// AlertType grades how urgently an alert should be handled.
type AlertType int

const (
	AlertTypeInfo AlertType = iota
	AlertTypeWarning
	AlertTypeCritical
	AlertTypeEmergency
)

var alertTypeNames = [...]string{"info", "warning", "critical", "emergency"}

func (a AlertType) String() string {
	if a < AlertTypeInfo || a > AlertTypeEmergency {
		return "unknown"
	}
	return alertTypeNames[a]
}

// MarshalJSON encodes the alert type as its wire name.
func (a AlertType) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a wire name back into an alert type.
func (a *AlertType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range alertTypeNames {
		if name == s {
			*a = AlertType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alert type %q", s)
}

// RiskMetrics is one tick's complete risk picture for the portfolio. Every
// field always carries a value: sub-computations that cannot run degrade to a
// documented safe default and the affected field names are listed in
// SimulatedFields so downstream consumers can tell real statistics from
// placeholders.
//
// All percentage-like fields are fractions (0.05 = 5%).
type RiskMetrics struct {
	Timestamp             time.Time `json:"timestamp" msgpack:"timestamp"`
	VaR1d                 float64   `json:"portfolio_var_1d" msgpack:"var_1d"`
	VaR7d                 float64   `json:"portfolio_var_7d" msgpack:"var_7d"`
	CVaR                  float64   `json:"portfolio_cvar" msgpack:"cvar"`
	MaxDrawdown           float64   `json:"max_drawdown" msgpack:"max_drawdown"`
	CurrentDrawdown       float64   `json:"current_drawdown" msgpack:"current_drawdown"`
	Beta                  float64   `json:"portfolio_beta" msgpack:"beta"`
	Volatility            float64   `json:"portfolio_volatility" msgpack:"volatility"`
	SharpeRatio           float64   `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	SortinoRatio          float64   `json:"sortino_ratio" msgpack:"sortino_ratio"`
	CalmarRatio           float64   `json:"calmar_ratio" msgpack:"calmar_ratio"`
	ConcentrationHHI      float64   `json:"concentration_hhi" msgpack:"concentration_hhi"`
	CorrelationRisk       float64   `json:"correlation_risk" msgpack:"correlation_risk"`
	LiquidityRisk         float64   `json:"liquidity_risk" msgpack:"liquidity_risk"`
	LeverageRatio         float64   `json:"leverage_ratio" msgpack:"leverage_ratio"`
	MarginUtilization     float64   `json:"margin_utilization" msgpack:"margin_utilization"`
	RiskBudgetUtilization float64   `json:"risk_budget_utilization" msgpack:"risk_budget_utilization"`
	DiversificationRatio  float64   `json:"diversification_ratio" msgpack:"diversification_ratio"`
	TailRisk              float64   `json:"tail_risk" msgpack:"tail_risk"`
	StressTestScore       float64   `json:"stress_test_score" msgpack:"stress_test_score"`
	SimulatedFields       []string  `json:"simulated_fields,omitempty" msgpack:"simulated_fields"`
}

// RiskAlert is a single threshold breach raised by the evaluator.
type RiskAlert struct {
	ID                      string    `json:"id" msgpack:"id"`
	Timestamp               time.Time `json:"timestamp" msgpack:"timestamp"`
	RiskType                RiskType  `json:"risk_type" msgpack:"risk_type"`
	Level                   RiskLevel `json:"level" msgpack:"level"`
	AlertType               AlertType `json:"alert_type" msgpack:"alert_type"`
	Title                   string    `json:"title" msgpack:"title"`
	Description             string    `json:"description" msgpack:"description"`
	CurrentValue            float64   `json:"current_value" msgpack:"current_value"`
	ThresholdValue          float64   `json:"threshold_value" msgpack:"threshold_value"`
	SuggestedActions        []string  `json:"suggested_actions" msgpack:"suggested_actions"`
	AutoMitigationAvailable bool      `json:"auto_mitigation_available" msgpack:"auto_mitigation_available"`
	PriorityScore           float64   `json:"priority_score" msgpack:"priority_score"`
	AffectedPositions       []string  `json:"affected_positions" msgpack:"affected_positions"`
	EstimatedImpact         float64   `json:"estimated_impact" msgpack:"estimated_impact"`
}

// PositionRisk is the per-position risk decomposition.
type PositionRisk struct {
	Symbol               string   `json:"symbol"`
	PositionSize         float64  `json:"position_size"`
	MarketValue          float64  `json:"market_value"`
	UnrealizedPnL        float64  `json:"unrealized_pnl"`
	VaRContribution      float64  `json:"var_contribution"`
	Volatility           float64  `json:"volatility"`
	Beta                 float64  `json:"beta"`
	CorrelationPortfolio float64  `json:"correlation_portfolio"`
	LiquidityScore       float64  `json:"liquidity_score"`
	ConcentrationPct     float64  `json:"concentration_pct"`
	RiskScore            float64  `json:"risk_score"`
	StopLossLevel        *float64 `json:"stop_loss_level,omitempty"`
	TakeProfitLevel      *float64 `json:"take_profit_level,omitempty"`
	MaxLossAmount        float64  `json:"max_loss_amount"`
	DaysToLiquidate      float64  `json:"days_to_liquidate"`
}

// StressScenario describes one shock to apply to a portfolio snapshot. Zero
// parameters are treated as "not part of this scenario"; a scenario may
// combine several shocks.
type StressScenario struct {
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	MarketShock          float64 `json:"market_shock,omitempty"`          // fractional move, e.g. -0.30
	VolatilityMultiplier float64 `json:"volatility_multiplier,omitempty"` // e.g. 3.0 for a x3 spike
	LiquidityShock       float64 `json:"liquidity_shock,omitempty"`       // 0..1 severity of a liquidity freeze
}

// ScenarioResult is the outcome of a single scenario.
type ScenarioResult struct {
	Scenario             StressScenario `json:"scenario"`
	StressedValue        float64        `json:"portfolio_value_stressed"`
	AbsoluteImpact       float64        `json:"absolute_impact"`
	PercentageImpact     float64        `json:"percentage_impact"` // percent, -30 means -30%
	RecoveryTimeEstimate float64        `json:"recovery_time_estimate"`
	PositionsAffected    []string       `json:"positions_affected"`
}

// StressSummary aggregates scenario results into one resilience verdict.
type StressSummary struct {
	AverageImpact   float64 `json:"average_impact"`
	MaximumImpact   float64 `json:"maximum_impact"`
	ResistanceScore float64 `json:"stress_resistance_score"`
	RiskLevel       string  `json:"risk_level"` // low / medium / high / critical band
}

// StressTestResult is a complete stress-test run.
type StressTestResult struct {
	Timestamp time.Time        `json:"timestamp"`
	BaseValue float64          `json:"base_portfolio_value"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Summary   StressSummary    `json:"summary"`
}

// ThresholdSet holds the trigger levels for every monitored risk dimension.
// All values are fractions, not percentages, except LeverageMax which is a
// ratio.
type ThresholdSet struct {
	VaR1dWarning      float64 `json:"var_1d_warning" msgpack:"var_1d_warning"`
	VaR1dCritical     float64 `json:"var_1d_critical" msgpack:"var_1d_critical"`
	DrawdownWarning   float64 `json:"drawdown_warning" msgpack:"drawdown_warning"`
	DrawdownCritical  float64 `json:"drawdown_critical" msgpack:"drawdown_critical"`
	VolatilityHigh    float64 `json:"volatility_high" msgpack:"volatility_high"`
	VolatilityExtreme float64 `json:"volatility_extreme" msgpack:"volatility_extreme"`
	ConcentrationHigh float64 `json:"concentration_high" msgpack:"concentration_high"`
	CorrelationHigh   float64 `json:"correlation_high" msgpack:"correlation_high"`
	LiquidityCritical float64 `json:"liquidity_critical" msgpack:"liquidity_critical"`
	LeverageMax       float64 `json:"leverage_max" msgpack:"leverage_max"`
	RiskBudgetMax     float64 `json:"risk_budget_max" msgpack:"risk_budget_max"`
}

// DefaultThresholds returns the factory threshold set.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		VaR1dWarning:      0.02,
		VaR1dCritical:     0.05,
		DrawdownWarning:   0.10,
		DrawdownCritical:  0.20,
		VolatilityHigh:    0.30,
		VolatilityExtreme: 0.50,
		ConcentrationHigh: 0.50,
		CorrelationHigh:   0.80,
		LiquidityCritical: 0.70,
		LeverageMax:       3.0,
		RiskBudgetMax:     0.90,
	}
}

// PositionLimits bounds individual exposures. Exposed on the thresholds
// endpoint for dashboard consumption; enforcement belongs to the trading
// service, not this engine.
type PositionLimits struct {
	MaxPositionSize    float64 `json:"max_position_size"`
	MaxSectorExposure  float64 `json:"max_sector_exposure"`
	MaxSingleAsset     float64 `json:"max_single_asset"`
	MaxCorrelatedGroup float64 `json:"max_correlated_group"`
}

// DefaultPositionLimits returns the factory position limits.
func DefaultPositionLimits() PositionLimits {
	return PositionLimits{
		MaxPositionSize:    0.20,
		MaxSectorExposure:  0.40,
		MaxSingleAsset:     0.15,
		MaxCorrelatedGroup: 0.30,
	}
}

// ThresholdAdjustment is one audit entry of the adaptive optimizer.
type ThresholdAdjustment struct {
	Timestamp     time.Time    `json:"timestamp"`
	OldThresholds ThresholdSet `json:"old_thresholds"`
	NewThresholds ThresholdSet `json:"new_thresholds"`
	SampleSize    int          `json:"sample_size"`
}
