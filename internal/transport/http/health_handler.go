package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "ncbproc/internal/errors"
	"ncbproc/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. A degraded service answers 503 so
// load balancers stop routing uploads to it.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, h.service.HealthCheck(r.Context()))
}

// writeStatus renders a degraded status as a 503 problem carrying the
// health report in its details.
func (h *HealthHandler) writeStatus(w http.ResponseWriter, r *http.Request, status services.HealthStatus) {
	if status.Status == "ok" {
		render.JSON(w, r, status)
		return
	}
	h.logger.WarnContext(r.Context(), "health check degraded", slog.String("ruleset", status.Ruleset))
	_ = render.Render(w, r, apierrors.ErrServiceUnavailable.WithDetails(status).Problem(r))
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
