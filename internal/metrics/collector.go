package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LicenseCounter is the slice of the license store the collector polls.
type LicenseCounter interface {
	Counts(ctx context.Context) (total, active int, err error)
}

// Collector owns a private registry so the /metrics endpoint exposes only
// our series, no default go/process collectors from other registrations.
type Collector struct {
	registry *prometheus.Registry
	counter  LicenseCounter

	activations   *prometheus.CounterVec
	validations   *prometheus.CounterVec
	violations    prometheus.Counter
	keysIssued    prometheus.Counter
	licenseTotal  prometheus.Gauge
	licenseActive prometheus.Gauge
}

func NewCollector(counter LicenseCounter) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		counter:  counter,
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "Activation attempts by outcome",
		}, []string{"result"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "Validation checks by outcome",
		}, []string{"result"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "security_violations_total",
			Help: "Violation reports accepted",
		}),
		keysIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "license_keys_issued_total",
			Help: "Keys generated by admins",
		}),
		licenseTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "licenses",
			Help: "License records in the store",
		}),
		licenseActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "licenses_active",
			Help: "License records with status ACTIVE",
		}),
	}

	reg.MustRegister(c.activations, c.validations, c.violations, c.keysIssued, c.licenseTotal, c.licenseActive)
	return c
}

func (c *Collector) RecordActivation(result string) { c.activations.WithLabelValues(result).Inc() }
func (c *Collector) RecordValidation(result string) { c.validations.WithLabelValues(result).Inc() }
func (c *Collector) RecordViolation()               { c.violations.Inc() }
func (c *Collector) RecordKeyIssued()               { c.keysIssued.Inc() }

// StartGaugeSync refreshes the license gauges from the store periodically.
func (c *Collector) StartGaugeSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				total, active, err := c.counter.Counts(syncCtx)
				cancel()
				if err != nil {
					log.Printf("Metrics gauge sync failed: %v", err)
					continue
				}
				c.licenseTotal.Set(float64(total))
				c.licenseActive.Set(float64(active))
			}
		}
	}()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
