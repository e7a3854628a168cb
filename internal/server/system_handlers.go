package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/domain"
)

// SystemHandlers serves process and dependency health for the status API
type SystemHandlers struct {
	log       zerolog.Logger
	appDB     *database.DB
	auditDB   *database.DB
	broker    domain.BrokerAdapter
	startedAt time.Time
}

// NewSystemHandlers creates the system status handlers. Broker may be
// nil when no credentials are configured.
func NewSystemHandlers(appDB, auditDB *database.DB, broker domain.BrokerAdapter, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		appDB:     appDB,
		auditDB:   auditDB,
		broker:    broker,
		startedAt: time.Now(),
	}
}

// HandleStatus handles GET /api/system/status. Failing dependencies
// degrade the overall status with the detail inline; the endpoint itself
// always answers 200.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cpuPct, memPct := h.systemStats()

	databases := map[string]string{
		"app":   h.databaseStatus(ctx, h.appDB),
		"audit": h.databaseStatus(ctx, h.auditDB),
	}

	brokerStatus := "not_configured"
	brokerReason := ""
	if h.broker != nil {
		brokerStatus = "healthy"
		if health := h.broker.Health(ctx); !health.Healthy {
			brokerStatus = "degraded"
			brokerReason = health.Reason
		}
	}

	status := "healthy"
	if brokerStatus == "degraded" {
		status = "degraded"
	}
	for _, dbStatus := range databases {
		if dbStatus != "healthy" {
			status = "degraded"
		}
	}

	response := map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"databases":      databases,
		"broker":         brokerStatus,
	}
	if brokerReason != "" {
		response["broker_reason"] = brokerReason
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *SystemHandlers) databaseStatus(ctx context.Context, db *database.DB) string {
	if db == nil {
		return "not_configured"
	}
	if err := db.HealthCheck(ctx); err != nil {
		h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
		return "unhealthy"
	}
	return "healthy"
}

// systemStats returns CPU and RAM usage percentages. The CPU sample uses
// a 100ms window so the status call stays fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
