package mitigation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bastion/internal/domain"
)

// fakeController records calls and returns scripted outcomes.
type fakeController struct {
	stopCalls       int
	rebalanceCalls  int
	reduceCalls     int
	reduceFactors   []float64
	liquidateCalls  int
	deleverageCalls int

	fail    bool
	failErr error

	positions []domain.Position
	selected  []string
}

func (f *fakeController) outcome() (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	return !f.fail, nil
}

func (f *fakeController) StopTrading(context.Context) (bool, error) {
	f.stopCalls++
	return f.outcome()
}

func (f *fakeController) RequestRebalance(context.Context) (bool, error) {
	f.rebalanceCalls++
	return f.outcome()
}

func (f *fakeController) ReducePositions(_ context.Context, factor float64) (bool, error) {
	f.reduceCalls++
	f.reduceFactors = append(f.reduceFactors, factor)
	return f.outcome()
}

func (f *fakeController) LiquidatePositions(_ context.Context, shouldLiquidate func(domain.Position) bool) (bool, error) {
	f.liquidateCalls++
	f.selected = nil
	for _, pos := range f.positions {
		if shouldLiquidate(pos) {
			f.selected = append(f.selected, pos.Symbol)
		}
	}
	return f.outcome()
}

func (f *fakeController) ReduceLeverage(context.Context) (bool, error) {
	f.deleverageCalls++
	return f.outcome()
}

type fixedLiquidity map[string]float64

func (f fixedLiquidity) LiquidityScore(symbol string) (float64, bool) {
	score, ok := f[symbol]
	if !ok {
		return 0.5, false
	}
	return score, true
}

func alert(riskType domain.RiskType, level domain.RiskLevel, id string) domain.RiskAlert {
	return domain.RiskAlert{ID: id, RiskType: riskType, Level: level}
}

func TestExecuteDrawdownCriticalStopsTrading(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1"))

	require.True(t, res.Success)
	assert.Equal(t, []string{domain.ActionEmergencyStop}, res.ActionsTaken)
	assert.Equal(t, 1, trading.stopCalls)
	assert.True(t, ex.EmergencyStopActive())
}

func TestExecuteEmergencyStopIdempotentPerAlert(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	a := alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1")
	ex.Execute(context.Background(), a)
	res := ex.Execute(context.Background(), a)

	assert.True(t, res.Success)
	assert.Equal(t, 1, trading.stopCalls)
	assert.Contains(t, res.Message, "already")
}

func TestExecuteEmergencyStopStickyAcrossAlerts(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1"))
	res := ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a2"))

	// A second distinct alert does not re-issue the stop while it is
	// still engaged.
	assert.True(t, res.Success)
	assert.Equal(t, 1, trading.stopCalls)
	assert.Contains(t, res.Message, "already active")
}

func TestClearEmergencyAllowsNewStop(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1"))
	require.True(t, ex.ClearEmergency())
	assert.False(t, ex.EmergencyStopActive())
	assert.False(t, ex.ClearEmergency())

	ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a2"))
	assert.Equal(t, 2, trading.stopCalls)
}

func TestExecuteConcentrationRebalances(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeConcentration, domain.RiskLevelHigh, "a1"))

	assert.True(t, res.Success)
	assert.Equal(t, []string{domain.ActionAutoRebalance}, res.ActionsTaken)
	assert.Equal(t, 1, trading.rebalanceCalls)
}

func TestExecuteVolatilityCriticalReducesPositions(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeVolatility, domain.RiskLevelExtreme, "a1"))

	assert.True(t, res.Success)
	assert.Equal(t, []string{domain.ActionReducePositions}, res.ActionsTaken)
	require.Len(t, trading.reduceFactors, 1)
	assert.Equal(t, 0.5, trading.reduceFactors[0])
}

func TestExecuteLiquidityCriticalSelectsIlliquid(t *testing.T) {
	trading := &fakeController{positions: []domain.Position{
		{Symbol: "BTC"},
		{Symbol: "UNI"},
		{Symbol: "ADA"},
	}}
	liq := fixedLiquidity{"BTC": 0.95, "UNI": 0.30, "ADA": 0.45}
	ex := NewExecutor(zerolog.Nop(), trading, liq)

	res := ex.Execute(context.Background(), alert(domain.RiskTypeLiquidity, domain.RiskLevelCritical, "a1"))

	assert.True(t, res.Success)
	assert.Equal(t, []string{domain.ActionLiquidateIlliquid}, res.ActionsTaken)
	assert.Equal(t, []string{"UNI", "ADA"}, trading.selected)

	// Re-running the same alert does not liquidate twice.
	ex.Execute(context.Background(), alert(domain.RiskTypeLiquidity, domain.RiskLevelCritical, "a1"))
	assert.Equal(t, 1, trading.liquidateCalls)
}

func TestExecuteLeverageHighReducesLeverage(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeLeverage, domain.RiskLevelHigh, "a1"))

	assert.True(t, res.Success)
	assert.Equal(t, []string{domain.ActionReduceLeverage}, res.ActionsTaken)
	assert.Equal(t, 1, trading.deleverageCalls)
}

func TestExecuteBelowActionLevelIntensifiesMonitoring(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	for _, a := range []domain.RiskAlert{
		alert(domain.RiskTypeDrawdown, domain.RiskLevelHigh, "a1"),
		alert(domain.RiskTypeVolatility, domain.RiskLevelHigh, "a2"),
		alert(domain.RiskTypeMarket, domain.RiskLevelCritical, "a3"),
		alert(domain.RiskTypeCorrelation, domain.RiskLevelMedium, "a4"),
	} {
		res := ex.Execute(context.Background(), a)
		assert.True(t, res.Success)
		assert.Equal(t, []string{domain.ActionMonitoringIntensified}, res.ActionsTaken)
	}

	assert.Zero(t, trading.stopCalls)
	assert.Zero(t, trading.reduceCalls)
	assert.False(t, ex.EmergencyStopActive())
}

func TestExecuteDegradesOnControllerError(t *testing.T) {
	trading := &fakeController{failErr: errors.New("connection refused")}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1"))

	assert.False(t, res.Success)
	assert.Equal(t, []string{domain.ActionMonitoringIntensified}, res.ActionsTaken)
	assert.Contains(t, res.Message, "connection refused")
	assert.False(t, ex.EmergencyStopActive())

	// The alert stays unmitigated, so a later retry can succeed.
	trading.failErr = nil
	res = ex.Execute(context.Background(), alert(domain.RiskTypeDrawdown, domain.RiskLevelCritical, "a1"))
	assert.True(t, res.Success)
	assert.True(t, ex.EmergencyStopActive())
}

func TestExecuteDegradesOnControllerRefusal(t *testing.T) {
	trading := &fakeController{fail: true}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	res := ex.Execute(context.Background(), alert(domain.RiskTypeConcentration, domain.RiskLevelHigh, "a1"))

	assert.False(t, res.Success)
	assert.Equal(t, []string{domain.ActionMonitoringIntensified}, res.ActionsTaken)
}

func TestRestoreEmergencyStop(t *testing.T) {
	trading := &fakeController{}
	ex := NewExecutor(zerolog.Nop(), trading, fixedLiquidity{})

	ex.RestoreEmergencyStop()
	assert.True(t, ex.EmergencyStopActive())
	assert.Zero(t, trading.stopCalls)
}
