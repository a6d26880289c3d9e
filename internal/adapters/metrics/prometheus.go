// Package metrics expone la actividad del ciclo en formato Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implementa ports.Metrics. Cada Recorder tiene su propio registry,
// así varios pueden convivir en el mismo proceso (tests incluidos).
type Recorder struct {
	reg *prometheus.Registry

	ingested        prometheus.Counter
	transitions     *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	pending         prometheus.Gauge
	cycleDuration   prometheus.Histogram
	cycles          prometheus.Counter
}

// New crea el recorder con los collectors de proceso y de runtime de Go.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		ingested: f.NewCounter(prometheus.CounterOpts{
			Name: "lotbot_lots_ingested_total",
			Help: "Snapshots upserted into the lot store",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lotbot_transitions_total",
			Help: "Committed lifecycle transitions",
		}, []string{"from", "to"}),
		persistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lotbot_persist_failures_total",
			Help: "Per-lot persistence failures, by cycle step",
		}, []string{"step"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "lotbot_pending_lots",
			Help: "Pending lots at the end of the last cycle",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lotbot_cycle_duration_seconds",
			Help:    "Wall time of a full cycle",
			Buckets: prometheus.DefBuckets,
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "lotbot_cycles_total",
			Help: "Completed cycles",
		}),
	}
}

func (r *Recorder) LotIngested() {
	r.ingested.Inc()
}

func (r *Recorder) Transition(from, to domain.Status) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Recorder) PersistFailure(step string) {
	r.persistFailures.WithLabelValues(step).Inc()
}

// CycleCompleted registra la duración del ciclo y el número de lotes pending que quedan.
func (r *Recorder) CycleCompleted(d time.Duration, pending int) {
	r.cycles.Inc()
	r.cycleDuration.Observe(d.Seconds())
	r.pending.Set(float64(pending))
}

// Handler sirve /metrics para este registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Nop descarta todo. Útil cuando no se expone /metrics.
type Nop struct{}

func (Nop) LotIngested() {}
func (Nop) Transition(_, _ domain.Status) {}
func (Nop) PersistFailure(string) {}
func (Nop) CycleCompleted(time.Duration, int) {}
