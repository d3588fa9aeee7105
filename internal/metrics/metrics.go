// Package metrics exposes pipeline state as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transphire/internal/logging"
)

// Metrics holds the collectors of one pipeline run. Each run gets its own
// registry so tests and restarts never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth     *prometheus.GaugeVec
	doneTotal      *prometheus.GaugeVec
	processed      *prometheus.CounterVec
	failures       *prometheus.CounterVec
	flags          *prometheus.GaugeVec
	workersRunning *prometheus.GaugeVec
	dispatch       *prometheus.HistogramVec
}

// New builds and registers the pipeline collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transphire_queue_depth",
			Help: "Items waiting in each stage queue",
		}, []string{"stage"}),
		doneTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transphire_queue_done",
			Help: "Lines in each stage's done mirror",
		}, []string{"stage"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transphire_items_processed_total",
			Help: "Items a stage finished successfully",
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transphire_failures_total",
			Help: "Failed dispatches by stage and failure kind",
		}, []string{"stage", "kind"}),
		flags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transphire_stage_flag",
			Help: "Health flags per stage (1=set)",
		}, []string{"stage", "flag"}),
		workersRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transphire_workers_running",
			Help: "Workers currently running an action",
		}, []string{"stage"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transphire_dispatch_duration_seconds",
			Help:    "Time spent in one stage action",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.queueDepth,
		m.doneTotal,
		m.processed,
		m.failures,
		m.flags,
		m.workersRunning,
		m.dispatch,
		collectors.NewGoCollector(),
	)
	return m
}

// SetQueue records the pending and done counts of stage.
func (m *Metrics) SetQueue(stage string, pending, done int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(stage).Set(float64(pending))
	m.doneTotal.WithLabelValues(stage).Set(float64(done))
}

// ObserveSuccess counts a finished item.
func (m *Metrics) ObserveSuccess(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(stage).Inc()
	m.dispatch.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveFailure counts a failed dispatch.
func (m *Metrics) ObserveFailure(stage, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage, kind).Inc()
	m.dispatch.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// SetFlag mirrors a health flag.
func (m *Metrics) SetFlag(stage, flag string, set bool) {
	if m == nil {
		return
	}
	v := 0.0
	if set {
		v = 1
	}
	m.flags.WithLabelValues(stage, flag).Set(v)
}

// SetRunning records how many workers of stage are inside an action.
func (m *Metrics) SetRunning(stage string, running int) {
	if m == nil {
		return
	}
	m.workersRunning.WithLabelValues(stage).Set(float64(running))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server serves /metrics on a bind address.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr and returns a server ready to Serve.
func (m *Metrics) Listen(addr string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logging.NewComponentLogger(logger, "metrics"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()
	s.logger.Info("metrics server listening", logging.String("addr", s.Addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
