package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter           = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_jobs_enqueued_total", Help: "Total enqueued jobs"})
	RateLimitRejects         = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_rate_limit_rejects_total", Help: "Enqueue requests rejected by rate limiter"})
	JobSuccess               = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_jobs_completed_total", Help: "Jobs completed successfully"})
	JobRetries               = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_jobs_retried_total", Help: "Failed jobs re-queued with backoff"})
	JobFailures              = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_jobs_failed_total", Help: "Jobs terminally failed"})
	QueueDepthGauge          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "automation_queue_depth", Help: "Eligible pending jobs"})
	AutomationCycles         = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_engine_cycles_total", Help: "Automation engine evaluation cycles"})
	AutomationsTriggered     = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_triggers_fired_total", Help: "Automation triggers that fired"})
	AutomationActionFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "automation_action_failures_total", Help: "Automation actions that failed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			JobSuccess,
			JobRetries,
			JobFailures,
			QueueDepthGauge,
			AutomationCycles,
			AutomationsTriggered,
			AutomationActionFailures,
		)
	})
	return promhttp.Handler()
}
