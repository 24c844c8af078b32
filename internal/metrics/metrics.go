// Package metrics exposes pipeline telemetry over Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Metrics holds every collector the service exports. It satisfies the
// observer interfaces of the monitor, notify, and pipeline packages.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	pipelineRunning *prometheus.GaugeVec
	fetchFailures   *prometheus.CounterVec
	priceChanges    prometheus.Counter
	notifications   prometheus.Counter

	server *http.Server
}

// New registers all collectors on reg and returns the metrics facade.
// Pass prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionwatch",
			Name:      "pipeline_runs_total",
			Help:      "Number of finished pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auctionwatch",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
		pipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "auctionwatch",
			Name:      "pipeline_running",
			Help:      "1 while the pipeline has a run in flight",
		}, []string{"pipeline"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auctionwatch",
			Name:      "fetch_failures_total",
			Help:      "Number of failed upstream fetches by error code",
		}, []string{"code"}),
		priceChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auctionwatch",
			Name:      "price_changes_total",
			Help:      "Number of recorded bid changes",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auctionwatch",
			Name:      "notifications_total",
			Help:      "Number of notifications created",
		}),
	}

	reg.MustRegister(
		m.runsTotal, m.runDuration, m.pipelineRunning,
		m.fetchFailures, m.priceChanges, m.notifications,
	)

	return m
}

// ObserveRun records one finished pipeline run.
func (m *Metrics) ObserveRun(name domain.PipelineName, failed bool, d time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.runsTotal.WithLabelValues(string(name), outcome).Inc()
	m.runDuration.WithLabelValues(string(name)).Observe(d.Seconds())
}

// SetRunning flips the in-flight gauge for one pipeline.
func (m *Metrics) SetRunning(name domain.PipelineName, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	m.pipelineRunning.WithLabelValues(string(name)).Set(v)
}

// ObserveFetchFailure counts one failed upstream fetch.
func (m *Metrics) ObserveFetchFailure(code string) {
	m.fetchFailures.WithLabelValues(code).Inc()
}

// ObservePriceChange counts one recorded bid change.
func (m *Metrics) ObservePriceChange() {
	m.priceChanges.Inc()
}

// ObserveNotifications counts n created notifications.
func (m *Metrics) ObserveNotifications(n int) {
	m.notifications.Add(float64(n))
}

// Serve starts the /metrics listener on addr and blocks until Shutdown.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	m.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := m.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the metrics listener.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
