// Package mitigation maps raised alerts to bounded corrective actions.
package mitigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
)

const (
	// Default factor applied when shrinking positions on extreme
	// volatility.
	defaultReduceFactor = 0.5

	// Positions scoring below this are liquidated during a liquidity
	// crisis response.
	defaultLiquidityFloor = 0.5

	// Upper bound on any single trading-controller call.
	defaultCallTimeout = 2 * time.Second
)

// LiquidityScorer supplies the liquidity score used to select positions
// for forced liquidation.
type LiquidityScorer interface {
	LiquidityScore(symbol string) (float64, bool)
}

// Executor carries out the fixed alert-to-action table. It owns the
// sticky emergency-stop flag and the per-session record of destructive
// actions, so one engine instance gets exactly one mitigation state.
type Executor struct {
	log       zerolog.Logger
	trading   domain.TradingController
	liquidity LiquidityScorer

	reduceFactor   float64
	liquidityFloor float64
	callTimeout    time.Duration

	mu            sync.Mutex
	emergencyStop bool
	mitigated     map[string]bool
}

// NewExecutor builds an executor around the given trading controller.
func NewExecutor(log zerolog.Logger, trading domain.TradingController, liquidity LiquidityScorer) *Executor {
	return &Executor{
		log:            log.With().Str("component", "mitigation").Logger(),
		trading:        trading,
		liquidity:      liquidity,
		reduceFactor:   defaultReduceFactor,
		liquidityFloor: defaultLiquidityFloor,
		callTimeout:    defaultCallTimeout,
		mitigated:      make(map[string]bool),
	}
}

// EmergencyStopActive reports whether the sticky stop is engaged.
func (e *Executor) EmergencyStopActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergencyStop
}

// RestoreEmergencyStop re-engages the sticky stop from persisted state
// after a restart, without issuing a new trading-controller call.
func (e *Executor) RestoreEmergencyStop() {
	e.mu.Lock()
	e.emergencyStop = true
	e.mu.Unlock()
	e.log.Warn().Msg("emergency stop restored from persisted state")
}

// ClearEmergency releases the emergency stop. It returns whether the
// stop was engaged. Only an explicit operator call reaches here; a calm
// later tick never does.
func (e *Executor) ClearEmergency() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.emergencyStop
	e.emergencyStop = false
	if was {
		e.log.Info().Msg("emergency stop cleared by operator")
	}
	return was
}

// Forget drops the mitigation record for an alert id, typically when
// the alert resolves.
func (e *Executor) Forget(alertID string) {
	e.mu.Lock()
	delete(e.mitigated, alertID)
	e.mu.Unlock()
}

// Execute performs the table action for one alert. It always returns a
// result: internal failures degrade to an intensified-monitoring result
// with success=false.
func (e *Executor) Execute(ctx context.Context, alert domain.RiskAlert) domain.MitigationResult {
	res := domain.MitigationResult{
		AlertID:   alert.ID,
		Timestamp: time.Now().UTC(),
	}

	switch {
	case alert.RiskType == domain.RiskTypeDrawdown && alert.Level >= domain.RiskLevelCritical:
		e.executeEmergencyStop(ctx, alert, &res)

	case alert.RiskType == domain.RiskTypeConcentration:
		e.executeRebalance(ctx, &res)

	case alert.RiskType == domain.RiskTypeVolatility && alert.Level >= domain.RiskLevelCritical:
		e.executeReduce(ctx, &res)

	case alert.RiskType == domain.RiskTypeLiquidity && alert.Level >= domain.RiskLevelCritical:
		e.executeLiquidation(ctx, alert, &res)

	case alert.RiskType == domain.RiskTypeLeverage && alert.Level >= domain.RiskLevelHigh:
		e.executeLeverageReduction(ctx, &res)

	default:
		res.ActionsTaken = append(res.ActionsTaken, domain.ActionMonitoringIntensified)
		res.Success = true
		res.Message = "no direct action for this alert, monitoring intensified"
	}

	e.log.Info().
		Str("alert_id", alert.ID).
		Strs("actions", res.ActionsTaken).
		Bool("success", res.Success).
		Msg("mitigation executed")
	return res
}

func (e *Executor) executeEmergencyStop(ctx context.Context, alert domain.RiskAlert, res *domain.MitigationResult) {
	e.mu.Lock()
	if e.mitigated[alert.ID] {
		e.mu.Unlock()
		res.ActionsTaken = append(res.ActionsTaken, domain.ActionEmergencyStop)
		res.Success = true
		res.Message = "emergency stop already issued for this alert"
		return
	}
	alreadyStopped := e.emergencyStop
	e.mu.Unlock()

	if alreadyStopped {
		e.markMitigated(alert.ID)
		res.ActionsTaken = append(res.ActionsTaken, domain.ActionEmergencyStop)
		res.Success = true
		res.Message = "emergency stop already active"
		return
	}

	ok, err := e.call(ctx, e.trading.StopTrading)
	if err != nil || !ok {
		e.degrade(res, "emergency stop request failed", err)
		return
	}

	e.mu.Lock()
	e.emergencyStop = true
	e.mitigated[alert.ID] = true
	e.mu.Unlock()

	res.ActionsTaken = append(res.ActionsTaken, domain.ActionEmergencyStop)
	res.Success = true
	res.Message = "trading halted, operator clear required to resume"
}

func (e *Executor) executeRebalance(ctx context.Context, res *domain.MitigationResult) {
	ok, err := e.call(ctx, e.trading.RequestRebalance)
	if err != nil || !ok {
		e.degrade(res, "rebalance request failed", err)
		return
	}
	res.ActionsTaken = append(res.ActionsTaken, domain.ActionAutoRebalance)
	res.Success = true
	res.Message = "auto-rebalance requested"
}

func (e *Executor) executeReduce(ctx context.Context, res *domain.MitigationResult) {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	ok, err := e.trading.ReducePositions(cctx, e.reduceFactor)
	if err != nil || !ok {
		e.degrade(res, "position reduction failed", err)
		return
	}
	res.ActionsTaken = append(res.ActionsTaken, domain.ActionReducePositions)
	res.Success = true
	res.Message = fmt.Sprintf("position sizes reduced by factor %.2f", e.reduceFactor)
}

func (e *Executor) executeLiquidation(ctx context.Context, alert domain.RiskAlert, res *domain.MitigationResult) {
	e.mu.Lock()
	if e.mitigated[alert.ID] {
		e.mu.Unlock()
		res.ActionsTaken = append(res.ActionsTaken, domain.ActionLiquidateIlliquid)
		res.Success = true
		res.Message = "liquidation already issued for this alert"
		return
	}
	e.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	ok, err := e.trading.LiquidatePositions(cctx, func(pos domain.Position) bool {
		score, _ := e.liquidity.LiquidityScore(pos.Symbol)
		return score < e.liquidityFloor
	})
	if err != nil || !ok {
		e.degrade(res, "liquidation request failed", err)
		return
	}

	e.markMitigated(alert.ID)
	res.ActionsTaken = append(res.ActionsTaken, domain.ActionLiquidateIlliquid)
	res.Success = true
	res.Message = fmt.Sprintf("illiquid positions (score < %.2f) liquidated", e.liquidityFloor)
}

func (e *Executor) executeLeverageReduction(ctx context.Context, res *domain.MitigationResult) {
	ok, err := e.call(ctx, e.trading.ReduceLeverage)
	if err != nil || !ok {
		e.degrade(res, "leverage reduction failed", err)
		return
	}
	res.ActionsTaken = append(res.ActionsTaken, domain.ActionReduceLeverage)
	res.Success = true
	res.Message = "leverage reduction requested"
}

func (e *Executor) call(ctx context.Context, fn func(context.Context) (bool, error)) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return fn(cctx)
}

// degrade records the non-destructive fallback outcome.
func (e *Executor) degrade(res *domain.MitigationResult, msg string, err error) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
		e.log.Error().Err(err).Msg(msg)
	} else {
		e.log.Error().Msg(msg)
	}
	res.ActionsTaken = append(res.ActionsTaken, domain.ActionMonitoringIntensified)
	res.Success = false
	res.Message = msg
}

func (e *Executor) markMitigated(alertID string) {
	e.mu.Lock()
	e.mitigated[alertID] = true
	e.mu.Unlock()
}
