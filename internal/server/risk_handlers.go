package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
	"github.com/aristath/bastion/internal/modules/adaptive"
	"github.com/aristath/bastion/internal/monitor"
)

// RiskHandlers serves the risk-engine API surface.
type RiskHandlers struct {
	engine *monitor.Engine
	log    zerolog.Logger
}

// NewRiskHandlers creates the risk handler set.
func NewRiskHandlers(engine *monitor.Engine, log zerolog.Logger) *RiskHandlers {
	return &RiskHandlers{
		engine: engine,
		log:    log.With().Str("handler", "risk").Logger(),
	}
}

// RegisterRoutes registers all risk routes.
func (h *RiskHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/dashboard", h.HandleDashboard)
		r.Get("/metrics", h.HandleLatestMetrics)
		r.Get("/metrics/history", h.HandleMetricsHistory)
		r.Get("/alerts", h.HandleActiveAlerts)
		r.Get("/alerts/history", h.HandleAlertHistory)
		r.Post("/stress-test", h.HandleStressTest)
		r.Get("/thresholds", h.HandleThresholds)
		r.Post("/thresholds/optimize", h.HandleOptimize)
		r.Get("/thresholds/adjustments", h.HandleAdjustments)
		r.Get("/positions", h.HandlePositions)
		r.Get("/positions/{symbol}", h.HandlePosition)
		r.Post("/monitor/start", h.HandleMonitorStart)
		r.Post("/monitor/stop", h.HandleMonitorStop)
		r.Post("/emergency/clear", h.HandleEmergencyClear)
	})
}

// HandleDashboard returns the aggregate operator view.
func (h *RiskHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.engine.Dashboard()
	if err != nil {
		if errors.Is(err, monitor.ErrNoMetrics) {
			writeError(w, h.log, http.StatusServiceUnavailable, "no risk data available yet")
			return
		}
		h.log.Error().Err(err).Msg("dashboard assembly failed")
		writeError(w, h.log, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	writeJSON(w, h.log, http.StatusOK, dashboard)
}

// HandleLatestMetrics returns the most recent metrics sample.
func (h *RiskHandlers) HandleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.LatestMetrics()
	if err != nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "no risk data available yet")
		return
	}
	writeJSON(w, h.log, http.StatusOK, m)
}

// HandleMetricsHistory returns up to ?limit= samples, oldest first.
func (h *RiskHandlers) HandleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, h.log, http.StatusOK, h.engine.MetricsHistory(limit))
}

// HandleActiveAlerts returns active alerts sorted by priority.
func (h *RiskHandlers) HandleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.engine.ActiveAlerts())
}

// HandleAlertHistory returns up to ?limit= historical alerts.
func (h *RiskHandlers) HandleAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	alerts, err := h.engine.AlertHistory(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load alert history")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load alert history")
		return
	}
	writeJSON(w, h.log, http.StatusOK, alerts)
}

// StressTestRequest optionally overrides the default scenarios.
type StressTestRequest struct {
	Scenarios []domain.StressScenario `json:"scenarios,omitempty"`
}

// HandleStressTest runs a stress test against the live portfolio.
func (h *RiskHandlers) HandleStressTest(w http.ResponseWriter, r *http.Request) {
	var req StressTestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.log, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.engine.RunStressTest(r.Context(), req.Scenarios)
	if err != nil {
		h.log.Error().Err(err).Msg("stress test failed")
		writeError(w, h.log, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, result)
}

// HandleThresholds returns the current thresholds and position limits.
func (h *RiskHandlers) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, limits := h.engine.Thresholds()
	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"thresholds":      thresholds,
		"position_limits": limits,
	})
}

// HandleOptimize triggers threshold optimization on demand.
func (h *RiskHandlers) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	adj, err := h.engine.OptimizeNow()
	if err != nil {
		if errors.Is(err, adaptive.ErrInsufficientHistory) {
			writeError(w, h.log, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("threshold optimization failed")
		writeError(w, h.log, http.StatusInternalServerError, "optimization failed")
		return
	}
	writeJSON(w, h.log, http.StatusOK, adj)
}

// HandleAdjustments returns the optimizer audit log.
func (h *RiskHandlers) HandleAdjustments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	adjustments, err := h.engine.ThresholdAdjustments(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load threshold adjustments")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load adjustments")
		return
	}
	writeJSON(w, h.log, http.StatusOK, adjustments)
}

// HandlePositions returns all per-position risk decompositions.
func (h *RiskHandlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.engine.PositionRisks())
}

// HandlePosition returns the decomposition for one symbol.
func (h *RiskHandlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	risk, err := h.engine.PositionRisk(symbol)
	if err != nil {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, risk)
}

// HandleMonitorStart starts the monitoring loop.
func (h *RiskHandlers) HandleMonitorStart(w http.ResponseWriter, r *http.Request) {
	h.engine.Start()
	writeJSON(w, h.log, http.StatusOK, map[string]any{"running": true})
}

// HandleMonitorStop stops the monitoring loop.
func (h *RiskHandlers) HandleMonitorStop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	writeJSON(w, h.log, http.StatusOK, map[string]any{"running": false})
}

// HandleEmergencyClear is the operator action releasing the sticky
// emergency stop.
func (h *RiskHandlers) HandleEmergencyClear(w http.ResponseWriter, r *http.Request) {
	cleared := h.engine.ClearEmergency()
	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"cleared":        cleared,
		"emergency_mode": h.engine.EmergencyStopActive(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
