// Package metrics exposes Prometheus collectors for remote commands,
// reconciliation decisions and sync runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schaermu/sandboxsync/internal/session"
)

const namespace = "sandboxsync"

// Command outcomes
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeError      = "error"
	OutcomeNoResponse = "no_response"
)

// Recorder owns a registry and the sandboxsync collectors. A nil Recorder
// is valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	remoteCommands *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	decisions      *prometheus.CounterVec
	syncs          *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		remoteCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_commands_total",
			Help:      "Remote commands issued, by command family, verb and outcome.",
		}, []string{"app", "verb", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_command_duration_seconds",
			Help:      "Duration of remote commands.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"app", "verb"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_decisions_total",
			Help:      "Reconciliation decisions taken after a registry scan.",
		}, []string{"decision"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Checkout runs, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		r.remoteCommands,
		r.remoteDuration,
		r.decisions,
		r.syncs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one remote command.
func (r *Recorder) ObserveCommand(app, verb, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.remoteCommands.WithLabelValues(app, verb, outcome).Inc()
	r.remoteDuration.WithLabelValues(app, verb).Observe(elapsed.Seconds())
}

// ObserveDecision records a reconciliation decision.
func (r *Recorder) ObserveDecision(decision string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision).Inc()
}

// ObserveSync records the result of a checkout run.
func (r *Recorder) ObserveSync(result string) {
	if r == nil {
		return
	}
	r.syncs.WithLabelValues(result).Inc()
}

// InstrumentFactory wraps every session opened by f so that its commands
// are recorded.
func (r *Recorder) InstrumentFactory(f session.Factory) session.Factory {
	if r == nil {
		return f
	}
	return func(ctx context.Context) (session.Session, error) {
		s, err := f(ctx)
		if err != nil {
			return nil, err
		}
		return &instrumentedSession{inner: s, rec: r}, nil
	}
}

type instrumentedSession struct {
	inner session.Session
	rec   *Recorder
}

func (s *instrumentedSession) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	s.rec.ObserveCommand(session.AppSI, "connect", outcome, time.Since(start))
	return err
}

func (s *instrumentedSession) Run(ctx context.Context, cmd *session.Command) (*session.Response, error) {
	start := time.Now()
	resp, err := s.inner.Run(ctx, cmd)
	var outcome string
	switch {
	case err != nil:
		outcome = OutcomeError
	case resp == nil:
		outcome = OutcomeNoResponse
	case resp.ExitCode != 0:
		outcome = OutcomeFailed
	default:
		outcome = OutcomeOK
	}
	s.rec.ObserveCommand(cmd.App, cmd.Verb, outcome, time.Since(start))
	return resp, err
}
