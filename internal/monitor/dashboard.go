package monitor

import (
	"time"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/pkg/formulas"
)

// Dashboard is the aggregate view served to operators: latest metrics,
// health score, active alerts, short trends and the riskiest positions.
type Dashboard struct {
	Timestamp         time.Time             `json:"timestamp"`
	HealthScore       float64               `json:"portfolio_health_score"`
	RiskLevel         string                `json:"risk_level"`
	CurrentMetrics    domain.RiskMetrics    `json:"current_metrics"`
	ActiveAlerts      []AlertSummary        `json:"active_alerts"`
	RiskTrends        RiskTrends            `json:"risk_trends"`
	TopRiskyPositions []RiskyPosition       `json:"top_risky_positions"`
	StressSummary     *domain.StressSummary `json:"stress_test_summary,omitempty"`
	EmergencyMode     bool                  `json:"emergency_mode"`
	MonitoringStatus  string                `json:"monitoring_status"`
}

// AlertSummary is the dashboard's condensed alert row.
type AlertSummary struct {
	ID            string  `json:"id"`
	RiskType      string  `json:"type"`
	Level         string  `json:"level"`
	Title         string  `json:"title"`
	PriorityScore float64 `json:"priority_score"`
}

// RiskTrends holds the last few samples of the headline series.
type RiskTrends struct {
	VaR        []float64   `json:"var_trend"`
	Drawdown   []float64   `json:"drawdown_trend"`
	Volatility []float64   `json:"volatility_trend"`
	Timestamps []time.Time `json:"timestamps"`
}

// RiskyPosition is one row of the top-risk table.
type RiskyPosition struct {
	Symbol           string  `json:"symbol"`
	RiskScore        float64 `json:"risk_score"`
	ConcentrationPct float64 `json:"concentration_pct"`
	VaRContribution  float64 `json:"var_contribution"`
}

// Dashboard assembles the full operator view. It requires at least one
// completed tick.
func (e *Engine) Dashboard() (*Dashboard, error) {
	latest, err := e.LatestMetrics()
	if err != nil {
		return nil, err
	}

	recent := e.MetricsHistory(trendWindow)
	stressSummary, err := e.LatestStressSummary()
	if err != nil {
		e.log.Error().Err(err).Msg("failed to load stress summary for dashboard")
	}

	status := "inactive"
	if e.Running() {
		status = "active"
	}

	d := &Dashboard{
		Timestamp:         time.Now().UTC(),
		HealthScore:       healthScore(latest),
		RiskLevel:         overallRiskLevel(latest),
		CurrentMetrics:    latest,
		ActiveAlerts:      []AlertSummary{},
		RiskTrends:        buildTrends(recent),
		TopRiskyPositions: e.topRiskyPositions(5),
		StressSummary:     stressSummary,
		EmergencyMode:     e.EmergencyStopActive(),
		MonitoringStatus:  status,
	}

	for _, a := range e.ActiveAlerts() {
		d.ActiveAlerts = append(d.ActiveAlerts, AlertSummary{
			ID:            a.ID,
			RiskType:      a.RiskType.String(),
			Level:         a.Level.String(),
			Title:         a.Title,
			PriorityScore: a.PriorityScore,
		})
	}
	return d, nil
}

func buildTrends(samples []domain.RiskMetrics) RiskTrends {
	t := RiskTrends{
		VaR:        make([]float64, len(samples)),
		Drawdown:   make([]float64, len(samples)),
		Volatility: make([]float64, len(samples)),
		Timestamps: trendTimestamps(samples),
	}
	for i, m := range samples {
		t.VaR[i] = m.VaR1d
		t.Drawdown[i] = m.CurrentDrawdown
		t.Volatility[i] = m.Volatility
	}
	return t
}

func (e *Engine) topRiskyPositions(n int) []RiskyPosition {
	risks := e.PositionRisks()

	// Highest composite score first.
	for i := 1; i < len(risks); i++ {
		for j := i; j > 0 && risks[j].RiskScore > risks[j-1].RiskScore; j-- {
			risks[j], risks[j-1] = risks[j-1], risks[j]
		}
	}
	if len(risks) > n {
		risks = risks[:n]
	}

	out := make([]RiskyPosition, len(risks))
	for i, r := range risks {
		out[i] = RiskyPosition{
			Symbol:           r.Symbol,
			RiskScore:        r.RiskScore,
			ConcentrationPct: r.ConcentrationPct,
			VaRContribution:  r.VaRContribution,
		}
	}
	return out
}

// healthScore blends the headline metrics into one 0..100 figure.
func healthScore(m domain.RiskMetrics) float64 {
	varScore := max0(100 - m.VaR1d*1000)
	drawdownScore := max0(100 - m.CurrentDrawdown*500)
	volatilityScore := max0(100 - m.Volatility*200)
	diversificationScore := m.DiversificationRatio * 100

	score := varScore*0.3 + drawdownScore*0.3 + volatilityScore*0.2 + diversificationScore*0.2
	return formulas.Clamp(score, 0, 100)
}

// overallRiskLevel bands the latest metrics into low/medium/high.
func overallRiskLevel(m domain.RiskMetrics) string {
	switch {
	case m.VaR1d > 0.05 || m.CurrentDrawdown > 0.15 || m.Volatility > 0.50:
		return "high"
	case m.VaR1d > 0.03 || m.CurrentDrawdown > 0.10 || m.Volatility > 0.30:
		return "medium"
	default:
		return "low"
	}
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
