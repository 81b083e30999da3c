package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const probeTimeout = 2 * time.Second

// Check is one named dependency probe. Probes must honor ctx cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Service answers GET /health. Any failing check turns the whole
// response 503, so a load balancer can drain the instance.
type Service struct {
	checks []Check
}

func NewService(checks ...Check) *Service {
	return &Service{checks: checks}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Service) Handler(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	code := http.StatusOK

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.Name] = err.Error()
			rep.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
