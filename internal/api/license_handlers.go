package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-license/internal/license"
	"github.com/technosupport/ts-license/internal/metrics"
)

type LicenseHandler struct {
	Service *license.Service
	Metrics *metrics.Collector
}

func NewLicenseHandler(svc *license.Service, m *metrics.Collector) *LicenseHandler {
	return &LicenseHandler{Service: svc, Metrics: m}
}

type ActivateRequest struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type ValidateRequest struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
}

// POST /api/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	err := h.Service.Activate(r.Context(), req.LicenseKey, req.DeviceID, req.DeviceName)
	switch {
	case err == nil:
		h.recordActivation("success")
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Activated"})
	case errors.Is(err, license.ErrBadRequest):
		h.recordActivation("bad_request")
		respondError(w, http.StatusBadRequest, "licenseKey and deviceId are required")
	case errors.Is(err, license.ErrNotFound):
		h.recordActivation("not_found")
		respondError(w, http.StatusNotFound, "License Not Found")
	case errors.Is(err, license.ErrExpired):
		h.recordActivation("expired")
		respondError(w, http.StatusForbidden, "License expired")
	case errors.Is(err, license.ErrDeviceMismatch):
		h.recordActivation("device_mismatch")
		respondError(w, http.StatusForbidden, "License already used by another device")
	default:
		log.Printf("Activate store error: %v", err)
		h.recordActivation("error")
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}

// POST /api/validate
// Any rejection answers 403 {valid:false} without detail: the device
// client only needs the boolean, and the reasons would leak probe info.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	valid, err := h.Service.Validate(r.Context(), req.LicenseKey, req.DeviceID)
	if err != nil {
		log.Printf("Validate store error: %v", err)
		h.recordValidation("error")
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if !valid {
		h.recordValidation("invalid")
		respondJSON(w, http.StatusForbidden, map[string]bool{"valid": false})
		return
	}
	h.recordValidation("valid")
	respondJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *LicenseHandler) recordActivation(result string) {
	if h.Metrics != nil {
		h.Metrics.RecordActivation(result)
	}
}

func (h *LicenseHandler) recordValidation(result string) {
	if h.Metrics != nil {
		h.Metrics.RecordValidation(result)
	}
}
