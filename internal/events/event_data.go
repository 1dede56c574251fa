package events

import (
	"github.com/aristath/bastion/internal/domain"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// MonitorStateData carries monitor lifecycle transitions.
type MonitorStateData struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval,omitempty"`
}

// EventType returns the event type for MonitorStateData
func (d *MonitorStateData) EventType() EventType {
	if d.Running {
		return MonitorStarted
	}
	return MonitorStopped
}

// MetricsComputedData carries the headline numbers of one completed tick.
type MetricsComputedData struct {
	VaR1d           float64 `json:"var_1d"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	Volatility      float64 `json:"volatility"`
	AlertCount      int     `json:"alert_count"`
}

// EventType returns the event type for MetricsComputedData
func (d *MetricsComputedData) EventType() EventType { return MetricsComputed }

// AlertRaisedData carries a newly raised alert.
type AlertRaisedData struct {
	Alert domain.RiskAlert `json:"alert"`
}

// EventType returns the event type for AlertRaisedData
func (d *AlertRaisedData) EventType() EventType { return AlertRaised }

// AlertResolvedData carries the id of an alert whose condition cleared.
type AlertResolvedData struct {
	AlertID  string          `json:"alert_id"`
	RiskType domain.RiskType `json:"risk_type"`
}

// EventType returns the event type for AlertResolvedData
func (d *AlertResolvedData) EventType() EventType { return AlertResolved }

// MitigationExecutedData carries a completed mitigation attempt.
type MitigationExecutedData struct {
	Result domain.MitigationResult `json:"result"`
}

// EventType returns the event type for MitigationExecutedData
func (d *MitigationExecutedData) EventType() EventType { return MitigationExecuted }

// ThresholdsAdjustedData carries one adaptive threshold recalibration.
type ThresholdsAdjustedData struct {
	SampleSize int `json:"sample_size"`
}

// EventType returns the event type for ThresholdsAdjustedData
func (d *ThresholdsAdjustedData) EventType() EventType { return ThresholdsAdjusted }

// EmergencyStopData carries emergency-stop engagements and operator clears.
type EmergencyStopData struct {
	Engaged bool   `json:"engaged"`
	Reason  string `json:"reason,omitempty"`
}

// EventType returns the event type for EmergencyStopData
func (d *EmergencyStopData) EventType() EventType {
	if d.Engaged {
		return EmergencyStopEngaged
	}
	return EmergencyStopCleared
}
