package http

import (
	"net/http"

	apierrors "ncbproc/internal/errors"
)

// MetricsHandler serves the Prometheus registry.
type MetricsHandler struct {
	prom   http.Handler
	errors *apierrors.ErrorHandler
}

// NewMetricsHandler creates a metrics handler. prom may be nil when metrics
// are disabled, in which case the endpoint answers 404.
func NewMetricsHandler(prom http.Handler, errs *apierrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{prom: prom, errors: errs}
}

// ServeHTTP handles GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.prom == nil {
		h.errors.NotFound(w, r)
		return
	}
	h.prom.ServeHTTP(w, r)
}
