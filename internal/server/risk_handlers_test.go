package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/internal/events"
	"github.com/aristath/bastion/internal/modules/adaptive"
	"github.com/aristath/bastion/internal/modules/alerts"
	"github.com/aristath/bastion/internal/modules/metrics"
	"github.com/aristath/bastion/internal/modules/mitigation"
	"github.com/aristath/bastion/internal/modules/stress"
	"github.com/aristath/bastion/internal/monitor"
	"github.com/aristath/bastion/internal/storage"
)

type staticPortfolio struct{}

func (staticPortfolio) GetPortfolioSnapshot(context.Context) (*domain.PortfolioSnapshot, error) {
	return &domain.PortfolioSnapshot{
		Timestamp:  time.Now().UTC(),
		TotalValue: 9000,
		Positions: []domain.Position{
			{Symbol: "AAA", Size: 1, MarketValue: 3000},
			{Symbol: "BBB", Size: 1, MarketValue: 3000},
			{Symbol: "CCC", Size: 1, MarketValue: 3000},
		},
	}, nil
}

type acceptAllTrading struct{}

func (acceptAllTrading) StopTrading(context.Context) (bool, error)      { return true, nil }
func (acceptAllTrading) RequestRebalance(context.Context) (bool, error) { return true, nil }
func (acceptAllTrading) ReducePositions(context.Context, float64) (bool, error) {
	return true, nil
}
func (acceptAllTrading) LiquidatePositions(context.Context, func(domain.Position) bool) (bool, error) {
	return true, nil
}
func (acceptAllTrading) ReduceLeverage(context.Context) (bool, error) { return true, nil }

func newTestRouter(t *testing.T) (chi.Router, *monitor.Engine) {
	t.Helper()
	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db))

	priceRepo := storage.NewPriceRepository(db, log)
	stats := metrics.NewHistoryStats(priceRepo, nil)

	engine, err := monitor.NewEngine(log, monitor.Config{
		Interval:           time.Hour,
		MetricsHistorySize: 100,
		AlertHistorySize:   100,
		StressHistorySize:  10,
	}, monitor.Deps{
		Portfolio:     staticPortfolio{},
		Stats:         stats,
		Calc:          metrics.NewCalculator(stats, 200),
		PosCalc:       metrics.NewPositionRiskCalculator(stats),
		Evaluator:     alerts.NewEvaluator(log),
		Executor:      mitigation.NewExecutor(log, acceptAllTrading{}, stats),
		Stress:        stress.NewEngine(log, stats),
		Optimizer:     adaptive.NewOptimizer(log),
		Bus:           events.NewBus(log),
		MetricsRepo:   storage.NewMetricsRepository(db, log),
		AlertRepo:     storage.NewAlertRepository(db, log),
		ThresholdRepo: storage.NewThresholdRepository(db, log),
		StressRepo:    storage.NewStressRepository(db, log),
		PriceRepo:     priceRepo,
		StateStore:    storage.NewStateStore(filepath.Join(t.TempDir(), "state.msgpack"), log),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		NewRiskHandlers(engine, log).RegisterRoutes(api)
	})
	return r, engine
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Timestamp string `json:"timestamp"`
		Error     string `json:"error"`
	} `json:"metadata"`
}

func doRequest(t *testing.T, r chi.Router, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestMetricsBeforeFirstTick(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodGet, "/api/risk/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no risk data available yet", env.Metadata.Error)
	assert.NotEmpty(t, env.Metadata.Timestamp)
}

func TestThresholdsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodGet, "/api/risk/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Thresholds     domain.ThresholdSet  `json:"thresholds"`
		PositionLimits domain.PositionLimits `json:"position_limits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, domain.DefaultThresholds(), payload.Thresholds)
	assert.Equal(t, domain.DefaultPositionLimits(), payload.PositionLimits)
}

func TestStressTestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodPost, "/api/risk/stress-test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.StressTestResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Scenarios, 4)
	assert.Equal(t, 9000.0, result.BaseValue)
}

func TestStressTestCustomScenario(t *testing.T) {
	r, _ := newTestRouter(t)

	body, err := json.Marshal(StressTestRequest{Scenarios: []domain.StressScenario{
		{Name: "Correction", MarketShock: -0.10},
	}})
	require.NoError(t, err)

	rec, env := doRequest(t, r, http.MethodPost, "/api/risk/stress-test", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.StressTestResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "Correction", result.Scenarios[0].Scenario.Name)
}

func TestStressTestBadBody(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodPost, "/api/risk/stress-test", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", env.Metadata.Error)
}

func TestOptimizeWithoutHistory(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodPost, "/api/risk/thresholds/optimize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, env.Metadata.Error, "insufficient")
}

func TestUnknownPositionReturns404(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, _ := doRequest(t, r, http.MethodGet, "/api/risk/positions/ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorLifecycleEndpoints(t *testing.T) {
	r, engine := newTestRouter(t)

	rec, _ := doRequest(t, r, http.MethodPost, "/api/risk/monitor/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.Running())

	rec, _ = doRequest(t, r, http.MethodPost, "/api/risk/monitor/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, engine.Running())

	// The loop ticks once on start, so metrics are available now.
	rec, env := doRequest(t, r, http.MethodGet, "/api/risk/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var m domain.RiskMetrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.False(t, m.Timestamp.IsZero())

	rec, env = doRequest(t, r, http.MethodGet, "/api/risk/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, env.Data)
}

func TestEmergencyClearWhenCalm(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodPost, "/api/risk/emergency/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Cleared       bool `json:"cleared"`
		EmergencyMode bool `json:"emergency_mode"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.False(t, payload.Cleared)
	assert.False(t, payload.EmergencyMode)
}

func TestActiveAlertsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doRequest(t, r, http.MethodGet, "/api/risk/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(env.Data)))
}
