package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MentionsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "karlsruher_mentions_read_total",
		Help: "Total mentions read for the first time",
	})
	Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karlsruher_actions_total",
		Help: "Total actions applied to mentions, by action",
	}, []string{"action"})
	ActionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "karlsruher_action_errors_total",
		Help: "Total per-mention action errors",
	})
	ReadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "karlsruher_read_mentions_duration_seconds",
		Help:    "Read-mentions run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	HousekeepingRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "karlsruher_housekeeping_runs_total",
		Help: "Total housekeeping runs",
	})
	HousekeepingErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "karlsruher_housekeeping_errors_total",
		Help: "Total housekeeping errors",
	})
	HousekeepingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "karlsruher_housekeeping_duration_seconds",
		Help:    "Housekeeping run duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karlsruher_api_retries_total",
		Help: "Total Twitter API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karlsruher_command_runs_total",
		Help: "Total command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "karlsruher_command_errors_total",
		Help: "Total failed command invocations",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		MentionsRead, Actions, ActionErrors, ReadDuration,
		HousekeepingRuns, HousekeepingErrors, HousekeepingDuration,
		APIRetries, CommandRuns, CommandErrors,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// An empty addr falls back to METRICS_ADDR; still empty means no server.
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveDuration records the elapsed time since start on h.
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCommandRun increments the run counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the error counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
