package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/bastion/internal/monitor"
)

// SystemHandlers serves process and host health endpoints.
type SystemHandlers struct {
	engine  *monitor.Engine
	started time.Time
	log     zerolog.Logger
}

// NewSystemHandlers creates the system handler set.
func NewSystemHandlers(engine *monitor.Engine, started time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		engine:  engine,
		started: started,
		log:     log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers the system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
	})
}

// HandleHealth reports process, host and engine health.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("failed to read CPU usage")
		cpuPercent = []float64{0}
	}

	var memUsedPct float64
	if memStat, err := mem.VirtualMemory(); err == nil {
		memUsedPct = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("failed to read memory statistics")
	}

	var diskUsedPct float64
	if diskStat, err := disk.Usage("/"); err == nil {
		diskUsedPct = diskStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("failed to read disk statistics")
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"status":             "ok",
		"uptime_seconds":     time.Since(h.started).Seconds(),
		"monitoring_active":  h.engine.Running(),
		"emergency_mode":     h.engine.EmergencyStopActive(),
		"cpu_percent":        cpuPercent[0],
		"memory_percent":     memUsedPct,
		"disk_percent":       diskUsedPct,
		"goroutines":         runtime.NumGoroutine(),
		"heap_alloc_bytes":   ms.HeapAlloc,
		"go_version":         runtime.Version(),
	})
}
