package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ts-license/internal/health"
)

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func TestHandler_AllHealthy(t *testing.T) {
	svc := health.NewService(
		health.Check{Name: "postgres", Probe: func(ctx context.Context) error { return nil }},
		health.Check{Name: "redis", Probe: func(ctx context.Context) error { return nil }},
	)

	w := httptest.NewRecorder()
	svc.Handler(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var rep report
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, "ok", rep.Checks["postgres"])
	assert.Equal(t, "ok", rep.Checks["redis"])
}

func TestHandler_FailingCheck(t *testing.T) {
	svc := health.NewService(
		health.Check{Name: "postgres", Probe: func(ctx context.Context) error { return nil }},
		health.Check{Name: "redis", Probe: func(ctx context.Context) error { return errors.New("connection refused") }},
	)

	w := httptest.NewRecorder()
	svc.Handler(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var rep report
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	assert.Equal(t, "degraded", rep.Status)
	// The healthy check still reports ok so operators see which dep broke.
	assert.Equal(t, "ok", rep.Checks["postgres"])
	assert.Equal(t, "connection refused", rep.Checks["redis"])
}
