package api

import (
	"net/http"

	"github.com/dogkeeper886/mem0/internal/memory"
)

type HealthHandler struct {
	svc *memory.Service
}

func NewHealthHandler(svc *memory.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health handles GET /health. Either backend being down is reported as
// degraded with a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.svc.Health(r.Context())

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
