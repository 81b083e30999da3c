package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-license/internal/data"
	"github.com/technosupport/ts-license/internal/license"
	"github.com/technosupport/ts-license/internal/metrics"
	"github.com/technosupport/ts-license/internal/seclog"
)

// AdminHandler serves the dashboard's read and generate endpoints.
// Routes mount behind the JWT middleware; no auth logic here.
type AdminHandler struct {
	License *license.Service
	SecLog  *seclog.Service
	Metrics *metrics.Collector
}

func NewAdminHandler(lic *license.Service, sl *seclog.Service, m *metrics.Collector) *AdminHandler {
	return &AdminHandler{License: lic, SecLog: sl, Metrics: m}
}

type StatsResponse struct {
	Total    int                 `json:"total"`
	Active   int                 `json:"active"`
	Tamper   int                 `json:"tamper"`
	Licenses []*data.License     `json:"licenses"`
	Logs     []*data.SecurityLog `json:"logs"`
}

type GenerateRequest struct {
	Days *int `json:"days,omitempty"`
}

// GET /api/admin/stats
// The license overview and the log tail are two separate reads, not one
// snapshot. Good enough for a dashboard refresh.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	overview, err := h.License.Stats(r.Context())
	if err != nil {
		log.Printf("Stats license read failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	logs, err := h.SecLog.Recent(r.Context(), seclog.DefaultRecentLimit)
	if err != nil {
		log.Printf("Stats log read failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Total:    overview.Total,
		Active:   overview.Active,
		Tamper:   seclog.TamperCount(logs),
		Licenses: overview.Licenses,
		Logs:     logs,
	})
}

// POST /api/admin/generate
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}
	if req.Days != nil && *req.Days <= 0 {
		respondError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	key, err := h.License.Generate(r.Context(), req.Days)
	if err != nil {
		if errors.Is(err, license.ErrKeyExhausted) {
			log.Printf("Generate exhausted retries: %v", err)
		} else {
			log.Printf("Generate store error: %v", err)
		}
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordKeyIssued()
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}
