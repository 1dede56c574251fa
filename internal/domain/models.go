// Package domain holds the core types of the risk engine. It is pure: no
// infrastructure dependencies, only data and the collaborator contracts.
package domain

import "time"

// Position is one holding inside a portfolio snapshot.
type Position struct {
	Symbol        string   `json:"symbol"`
	Size          float64  `json:"size"`
	MarketValue   float64  `json:"market_value"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`
	TakeProfit    *float64 `json:"take_profit,omitempty"`
}

// PortfolioSnapshot is a point-in-time view of the portfolio, produced by the
// external portfolio provider. It is immutable once read: the engine never
// writes to it.
type PortfolioSnapshot struct {
	Timestamp  time.Time  `json:"timestamp"`
	TotalValue float64    `json:"total_value"`
	Positions  []Position `json:"positions"`
}

// TotalMarketValue sums the market value of all positions.
func (s *PortfolioSnapshot) TotalMarketValue() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.MarketValue
	}
	return total
}

// Mitigation action identifiers, as reported in MitigationResult.ActionsTaken.
const (
	ActionEmergencyStop         = "emergency_stop"
	ActionAutoRebalance         = "auto_rebalance"
	ActionReducePositions       = "reduce_positions"
	ActionLiquidateIlliquid     = "liquidate_illiquid"
	ActionReduceLeverage        = "reduce_leverage"
	ActionMonitoringIntensified = "monitoring_intensified"
)

// MitigationResult reports what the executor did about one alert. It is
// always returned, including on internal failure (success=false plus a
// human-readable message), never replaced by an error.
type MitigationResult struct {
	AlertID      string    `json:"alert_id"`
	ActionsTaken []string  `json:"actions_taken"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
