package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger 依赖健康检查
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

func NewHealthHandler(checks map[string]Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Result[map[string]string]{
			Code: ResultError, Type: "error", Message: "degraded", Result: status,
		})
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}
