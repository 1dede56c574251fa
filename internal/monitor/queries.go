package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/internal/events"
)

// ActiveAlerts returns the currently active alerts sorted by priority,
// highest first.
func (e *Engine) ActiveAlerts() []domain.RiskAlert {
	e.mu.RLock()
	out := make([]domain.RiskAlert, 0, len(e.activeAlerts))
	for _, a := range e.activeAlerts {
		out = append(out, a)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// AlertHistory returns up to n historical alerts, newest first.
func (e *Engine) AlertHistory(n int) ([]domain.RiskAlert, error) {
	if n <= 0 || n > e.cfg.AlertHistorySize {
		n = e.cfg.AlertHistorySize
	}
	return e.alertRepo.Recent(n)
}

// MetricsHistory returns up to n metrics samples, oldest first.
func (e *Engine) MetricsHistory(n int) []domain.RiskMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	return append([]domain.RiskMetrics(nil), e.history[len(e.history)-n:]...)
}

// LatestMetrics returns the most recent sample.
func (e *Engine) LatestMetrics() (domain.RiskMetrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastMetrics == nil {
		return domain.RiskMetrics{}, ErrNoMetrics
	}
	return *e.lastMetrics, nil
}

// Thresholds returns the current threshold set and position limits.
func (e *Engine) Thresholds() (domain.ThresholdSet, domain.PositionLimits) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds, domain.DefaultPositionLimits()
}

// ThresholdAdjustments returns up to n audit entries, newest first.
func (e *Engine) ThresholdAdjustments(n int) ([]domain.ThresholdAdjustment, error) {
	if n <= 0 {
		n = 50
	}
	return e.thresholdRepo.Adjustments(n)
}

// PositionRisk returns the latest decomposition for one symbol.
func (e *Engine) PositionRisk(symbol string) (domain.PositionRisk, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.positionRisks {
		if r.Symbol == symbol {
			return r, nil
		}
	}
	return domain.PositionRisk{}, fmt.Errorf("no position risk for symbol %q", symbol)
}

// PositionRisks returns the latest decomposition for every position.
func (e *Engine) PositionRisks() []domain.PositionRisk {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.PositionRisk(nil), e.positionRisks...)
}

// RunStressTest fetches a fresh snapshot, runs the scenarios (default
// set when none are given) and records the result.
func (e *Engine) RunStressTest(ctx context.Context, scenarios []domain.StressScenario) (domain.StressTestResult, error) {
	cctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	snap, err := e.portfolio.GetPortfolioSnapshot(cctx)
	cancel()
	if err != nil {
		return domain.StressTestResult{}, fmt.Errorf("failed to fetch snapshot for stress test: %w", err)
	}

	result := e.stress.Run(snap, scenarios)
	if err := e.stressRepo.Insert(result); err != nil {
		e.log.Error().Err(err).Msg("failed to persist stress result")
	}
	return result, nil
}

// OptimizeNow runs the threshold optimizer on demand, outside the
// loop's cadence.
func (e *Engine) OptimizeNow() (domain.ThresholdAdjustment, error) {
	e.mu.RLock()
	current := e.thresholds
	history := append([]domain.RiskMetrics(nil), e.history...)
	e.mu.RUnlock()

	next, adj, err := e.optimizer.Optimize(current, history)
	if err != nil {
		return domain.ThresholdAdjustment{}, err
	}

	e.mu.Lock()
	e.thresholds = next
	e.mu.Unlock()

	if err := e.thresholdRepo.InsertAdjustment(*adj); err != nil {
		e.log.Error().Err(err).Msg("failed to persist threshold adjustment")
	}
	e.bus.Publish(&events.ThresholdsAdjustedData{SampleSize: adj.SampleSize})
	e.saveState()
	return *adj, nil
}

// EmergencyStopActive reports the sticky stop state.
func (e *Engine) EmergencyStopActive() bool {
	return e.executor.EmergencyStopActive()
}

// ClearEmergency is the operator action releasing the sticky stop. It
// reports whether a stop was actually engaged.
func (e *Engine) ClearEmergency() bool {
	was := e.executor.ClearEmergency()
	if was {
		e.bus.Publish(&events.EmergencyStopData{Engaged: false})
		e.saveState()
	}
	return was
}

// LatestStressSummary returns the summary of the last recorded stress
// test, or nil when none exists.
func (e *Engine) LatestStressSummary() (*domain.StressSummary, error) {
	latest, err := e.stressRepo.Latest()
	if err != nil || latest == nil {
		return nil, err
	}
	s := latest.Summary
	return &s, nil
}

// Uptime helpers for the dashboard trend window.
const trendWindow = 7

func trendTimestamps(samples []domain.RiskMetrics) []time.Time {
	out := make([]time.Time, len(samples))
	for i, m := range samples {
		out[i] = m.Timestamp
	}
	return out
}
