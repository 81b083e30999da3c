package api

import (
	"encoding/json"
	"net/http"

	"github.com/technosupport/ts-license/internal/metrics"
	"github.com/technosupport/ts-license/internal/middleware"
	"github.com/technosupport/ts-license/internal/seclog"
)

type SecLogHandler struct {
	Service *seclog.Service
	Metrics *metrics.Collector
}

func NewSecLogHandler(svc *seclog.Service, m *metrics.Collector) *SecLogHandler {
	return &SecLogHandler{Service: svc, Metrics: m}
}

type ViolationRequest struct {
	DeviceID      string `json:"deviceId"`
	ViolationType string `json:"violationType"`
	Details       string `json:"details"`
}

// POST /api/security-log
// Unauthenticated on purpose: a tampered client won't carry credentials,
// and the endpoint only appends telemetry. Rate limiting and dedup keep
// it from being a write amplifier.
func (h *SecLogHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req ViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.DeviceID == "" || req.ViolationType == "" {
		respondError(w, http.StatusBadRequest, "deviceId and violationType are required")
		return
	}

	ip := middleware.ExtractIP(r)
	if err := h.Service.Record(r.Context(), req.DeviceID, req.ViolationType, req.Details, ip); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordViolation()
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
