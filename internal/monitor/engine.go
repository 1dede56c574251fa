// Package monitor runs the periodic risk-monitoring loop and owns all
// mutable engine state: current thresholds, active alerts, bounded
// histories and the emergency flag. One Engine instance serves one
// trading session.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/internal/events"
	"github.com/aristath/bastion/internal/modules/adaptive"
	"github.com/aristath/bastion/internal/modules/alerts"
	"github.com/aristath/bastion/internal/modules/metrics"
	"github.com/aristath/bastion/internal/modules/mitigation"
	"github.com/aristath/bastion/internal/modules/stress"
	"github.com/aristath/bastion/internal/storage"
)

// ErrNoMetrics is returned by queries that need at least one completed
// tick.
var ErrNoMetrics = errors.New("no risk metrics computed yet")

const (
	snapshotTimeout = 3 * time.Second
	stopTimeout     = 5 * time.Second

	// State snapshots are forced at this tick cadence even without
	// alert activity.
	stateSaveEveryTicks = 60
)

// Config bounds the engine's histories and cadences.
type Config struct {
	Interval           time.Duration
	OptimizeEveryTicks uint64
	MetricsHistorySize int
	AlertHistorySize   int
	StressHistorySize  int
	ValueHistorySize   int
}

// Engine wires the calculators, evaluator, executor and repositories
// into the periodic monitoring loop.
type Engine struct {
	log zerolog.Logger
	cfg Config

	portfolio domain.PortfolioProvider
	stats     *metrics.HistoryStats
	calc      *metrics.Calculator
	posCalc   *metrics.PositionRiskCalculator
	evaluator *alerts.Evaluator
	executor  *mitigation.Executor
	stress    *stress.Engine
	optimizer *adaptive.Optimizer
	bus       *events.Bus

	metricsRepo   *storage.MetricsRepository
	alertRepo     *storage.AlertRepository
	thresholdRepo *storage.ThresholdRepository
	stressRepo    *storage.StressRepository
	priceRepo     *storage.PriceRepository
	stateStore    *storage.StateStore

	mu            sync.RWMutex
	running       bool
	stop          chan struct{}
	done          chan struct{}
	thresholds    domain.ThresholdSet
	activeAlerts  map[string]domain.RiskAlert
	history       []domain.RiskMetrics
	valueHistory  []float64
	positionRisks []domain.PositionRisk
	lastMetrics   *domain.RiskMetrics
	lastPriceDay  map[string]string
	tickCount     uint64
}

// Deps collects the engine's collaborators.
type Deps struct {
	Portfolio domain.PortfolioProvider
	Stats     *metrics.HistoryStats
	Calc      *metrics.Calculator
	PosCalc   *metrics.PositionRiskCalculator
	Evaluator *alerts.Evaluator
	Executor  *mitigation.Executor
	Stress    *stress.Engine
	Optimizer *adaptive.Optimizer
	Bus       *events.Bus

	MetricsRepo   *storage.MetricsRepository
	AlertRepo     *storage.AlertRepository
	ThresholdRepo *storage.ThresholdRepository
	StressRepo    *storage.StressRepository
	PriceRepo     *storage.PriceRepository
	StateStore    *storage.StateStore
}

// NewEngine builds a stopped engine with default thresholds, then
// overlays any persisted state (adapted thresholds, active alerts,
// emergency flag) from the previous run.
func NewEngine(log zerolog.Logger, cfg Config, deps Deps) (*Engine, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ValueHistorySize <= 0 {
		cfg.ValueHistorySize = cfg.MetricsHistorySize
	}

	e := &Engine{
		log:           log.With().Str("component", "monitor").Logger(),
		cfg:           cfg,
		portfolio:     deps.Portfolio,
		stats:         deps.Stats,
		calc:          deps.Calc,
		posCalc:       deps.PosCalc,
		evaluator:     deps.Evaluator,
		executor:      deps.Executor,
		stress:        deps.Stress,
		optimizer:     deps.Optimizer,
		bus:           deps.Bus,
		metricsRepo:   deps.MetricsRepo,
		alertRepo:     deps.AlertRepo,
		thresholdRepo: deps.ThresholdRepo,
		stressRepo:    deps.StressRepo,
		priceRepo:     deps.PriceRepo,
		stateStore:    deps.StateStore,
		thresholds:    domain.DefaultThresholds(),
		activeAlerts:  make(map[string]domain.RiskAlert),
		lastPriceDay:  make(map[string]string),
	}

	if err := e.restoreState(); err != nil {
		return nil, err
	}
	if err := e.warmHistory(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) restoreState() error {
	state, err := e.stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to restore engine state: %w", err)
	}
	if state == nil {
		return nil
	}

	e.thresholds = state.Thresholds
	e.tickCount = state.TickCount
	for id, alert := range state.ActiveAlerts {
		e.activeAlerts[id] = alert
	}
	if state.EmergencyStop {
		// The executor flag is process-local; re-engage it so the
		// stop stays sticky across restarts.
		e.executor.RestoreEmergencyStop()
	}

	e.log.Info().
		Int("active_alerts", len(e.activeAlerts)).
		Bool("emergency_stop", state.EmergencyStop).
		Time("saved_at", state.SavedAt).
		Msg("engine state restored")
	return nil
}

func (e *Engine) warmHistory() error {
	hist, err := e.metricsRepo.Recent(e.cfg.MetricsHistorySize)
	if err != nil {
		return fmt.Errorf("failed to warm metrics history: %w", err)
	}
	e.history = hist
	if len(hist) > 0 {
		m := hist[len(hist)-1]
		e.lastMetrics = &m
	}

	values, err := e.metricsRepo.RecentValues(e.cfg.ValueHistorySize)
	if err != nil {
		return fmt.Errorf("failed to warm value history: %w", err)
	}
	e.valueHistory = values
	return nil
}

// Start begins the monitoring loop. Calling Start on a running engine
// is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stop, e.done
	e.mu.Unlock()

	e.log.Info().Dur("interval", e.cfg.Interval).Msg("monitoring started")
	e.bus.Publish(&events.MonitorStateData{
		Running:  true,
		Interval: e.cfg.Interval.String(),
	})

	go e.loop(stop, done)
}

// Stop halts the loop and waits for the in-flight tick, bounded by
// stopTimeout. Calling Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		e.log.Warn().Msg("timed out waiting for monitoring loop to stop")
	}

	e.log.Info().Msg("monitoring stopped")
	e.bus.Publish(&events.MonitorStateData{Running: false})
	e.saveState()
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	// First tick immediately rather than one interval in.
	e.tick()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick runs one monitoring cycle. Any single failure is logged and the
// cycle is abandoned; the loop itself keeps running.
func (e *Engine) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	snap, err := e.portfolio.GetPortfolioSnapshot(ctx)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Msg("snapshot fetch failed, skipping tick")
		return
	}

	e.recordPrices(snap)
	e.recordValue(snap)

	e.mu.RLock()
	valueHistory := append([]float64(nil), e.valueHistory...)
	thresholds := e.thresholds
	e.mu.RUnlock()

	m := e.calc.Calculate(snap, valueHistory)

	e.posCalc.Invalidate()
	positionRisks := e.posCalc.CalculateAll(snap)

	raised := e.evaluator.Evaluate(m, thresholds, positionRisks)

	e.mu.Lock()
	e.appendMetrics(m)
	e.positionRisks = positionRisks
	e.tickCount++
	tick := e.tickCount
	newAlerts, resolved := e.reconcileAlertsLocked(raised)
	e.mu.Unlock()

	if err := e.metricsRepo.Insert(m); err != nil {
		e.log.Error().Err(err).Msg("failed to persist metrics")
	}

	e.bus.Publish(&events.MetricsComputedData{
		VaR1d:           m.VaR1d,
		CurrentDrawdown: m.CurrentDrawdown,
		Volatility:      m.Volatility,
		AlertCount:      len(raised),
	})

	for _, id := range resolved {
		e.executor.Forget(id.ID)
		e.bus.Publish(&events.AlertResolvedData{
			AlertID:  id.ID,
			RiskType: id.RiskType,
		})
	}

	for _, alert := range newAlerts {
		e.handleAlert(alert)
	}

	e.maybeOptimize(tick)
	e.maybePrune(tick)

	if len(newAlerts) > 0 || len(resolved) > 0 || tick%stateSaveEveryTicks == 0 {
		e.saveState()
	}
}

// reconcileAlertsLocked merges freshly raised alerts into the active
// map. A dimension already active keeps its original alert id unless
// the level changed; dimensions that stopped triggering resolve.
// Callers hold e.mu.
func (e *Engine) reconcileAlertsLocked(raised []domain.RiskAlert) (newAlerts []domain.RiskAlert, resolved []domain.RiskAlert) {
	triggered := make(map[domain.RiskType]domain.RiskAlert, len(raised))
	for _, a := range raised {
		triggered[a.RiskType] = a
	}

	for id, active := range e.activeAlerts {
		fresh, still := triggered[active.RiskType]
		if still && fresh.Level == active.Level {
			// Condition persists at the same severity, keep the
			// original alert.
			delete(triggered, active.RiskType)
			continue
		}
		delete(e.activeAlerts, id)
		resolved = append(resolved, active)
	}

	// Walk the evaluator's slice rather than the map so alerts reach
	// mitigation in evaluation order.
	for _, a := range raised {
		if _, ok := triggered[a.RiskType]; !ok {
			continue
		}
		delete(triggered, a.RiskType)
		e.activeAlerts[a.ID] = a
		newAlerts = append(newAlerts, a)
	}
	return newAlerts, resolved
}

func (e *Engine) handleAlert(alert domain.RiskAlert) {
	if err := e.alertRepo.Insert(alert); err != nil {
		e.log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to persist alert")
	}
	e.bus.Publish(&events.AlertRaisedData{Alert: alert})

	if !alert.AutoMitigationAvailable || alert.Level < domain.RiskLevelCritical {
		return
	}

	wasStopped := e.executor.EmergencyStopActive()
	res := e.executor.Execute(context.Background(), alert)
	e.bus.Publish(&events.MitigationExecutedData{Result: res})

	if !wasStopped && e.executor.EmergencyStopActive() {
		e.bus.Publish(&events.EmergencyStopData{
			Engaged: true,
			Reason:  alert.Title,
		})
		e.saveState()
	}
}

func (e *Engine) maybeOptimize(tick uint64) {
	if e.cfg.OptimizeEveryTicks == 0 || tick%e.cfg.OptimizeEveryTicks != 0 {
		return
	}

	e.mu.RLock()
	current := e.thresholds
	history := append([]domain.RiskMetrics(nil), e.history...)
	e.mu.RUnlock()

	next, adj, err := e.optimizer.Optimize(current, history)
	if err != nil {
		if !errors.Is(err, adaptive.ErrInsufficientHistory) {
			e.log.Error().Err(err).Msg("threshold optimization failed")
		}
		return
	}

	e.mu.Lock()
	e.thresholds = next
	e.mu.Unlock()

	if err := e.thresholdRepo.InsertAdjustment(*adj); err != nil {
		e.log.Error().Err(err).Msg("failed to persist threshold adjustment")
	}
	e.bus.Publish(&events.ThresholdsAdjustedData{SampleSize: adj.SampleSize})
	e.saveState()
}

func (e *Engine) maybePrune(tick uint64) {
	if tick%uint64(stateSaveEveryTicks) != 0 {
		return
	}
	if err := e.metricsRepo.Prune(e.cfg.MetricsHistorySize); err != nil {
		e.log.Error().Err(err).Msg("failed to prune metrics history")
	}
	if err := e.metricsRepo.PruneValues(e.cfg.ValueHistorySize); err != nil {
		e.log.Error().Err(err).Msg("failed to prune value history")
	}
	if err := e.alertRepo.Prune(e.cfg.AlertHistorySize); err != nil {
		e.log.Error().Err(err).Msg("failed to prune alert history")
	}
	if err := e.stressRepo.Prune(e.cfg.StressHistorySize); err != nil {
		e.log.Error().Err(err).Msg("failed to prune stress history")
	}
}

// recordPrices derives per-symbol prices from the snapshot and stores
// the daily close. Symbol statistics are re-estimated when a new
// trading day starts.
func (e *Engine) recordPrices(snap *domain.PortfolioSnapshot) {
	day := snap.Timestamp.UTC().Format("2006-01-02")
	for _, pos := range snap.Positions {
		if pos.Size == 0 {
			continue
		}
		price := pos.MarketValue / pos.Size
		if price <= 0 {
			continue
		}
		if err := e.priceRepo.UpsertClose(pos.Symbol, snap.Timestamp, price); err != nil {
			e.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("failed to record price")
			continue
		}

		e.mu.Lock()
		rolled := e.lastPriceDay[pos.Symbol] != day
		e.lastPriceDay[pos.Symbol] = day
		e.mu.Unlock()
		if rolled {
			e.stats.Invalidate(pos.Symbol)
		}
	}
}

func (e *Engine) recordValue(snap *domain.PortfolioSnapshot) {
	e.mu.Lock()
	e.valueHistory = append(e.valueHistory, snap.TotalValue)
	if len(e.valueHistory) > e.cfg.ValueHistorySize {
		e.valueHistory = e.valueHistory[1:]
	}
	e.mu.Unlock()

	if err := e.metricsRepo.InsertValue(snap.Timestamp, snap.TotalValue); err != nil {
		e.log.Error().Err(err).Msg("failed to persist portfolio value")
	}
}

// appendMetrics adds a sample to the bounded in-memory history.
// Callers hold e.mu.
func (e *Engine) appendMetrics(m domain.RiskMetrics) {
	e.history = append(e.history, m)
	if len(e.history) > e.cfg.MetricsHistorySize {
		e.history = e.history[1:]
	}
	e.lastMetrics = &m
}

func (e *Engine) saveState() {
	e.mu.RLock()
	state := storage.EngineState{
		Thresholds:    e.thresholds,
		ActiveAlerts:  make(map[string]domain.RiskAlert, len(e.activeAlerts)),
		EmergencyStop: e.executor.EmergencyStopActive(),
		TickCount:     e.tickCount,
	}
	for id, a := range e.activeAlerts {
		state.ActiveAlerts[id] = a
	}
	e.mu.RUnlock()

	if err := e.stateStore.Save(state); err != nil {
		e.log.Error().Err(err).Msg("failed to save engine state")
	}
}
