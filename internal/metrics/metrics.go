package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the game's collectors on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	logins      *prometheus.CounterVec
	guesses     prometheus.Counter
	rejected    *prometheus.CounterVec
	settlements prometheus.Counter
	winners     prometheus.Counter
	roundOpen   prometheus.Gauge
	storeErrors *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "logins_total",
			Help:      "Logins, labelled by whether a new user was created.",
		}, []string{"new_user"}),
		guesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "guesses_total",
			Help:      "Guesses accepted into the current round.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "requests_rejected_total",
			Help:      "Requests rejected, labelled by error code.",
		}, []string{"code"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "settlements_total",
			Help:      "Rounds settled.",
		}),
		winners: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "winners_total",
			Help:      "Correct guesses awarded across all settlements.",
		}),
		roundOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roundguess",
			Name:      "round_open",
			Help:      "1 while the round accepts guesses.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundguess",
			Name:      "store_errors_total",
			Help:      "Storage failures, labelled by operation.",
		}, []string{"op"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.logins, r.guesses, r.rejected, r.settlements, r.winners, r.roundOpen, r.storeErrors,
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Recording methods are no-ops on a nil Recorder.

func (r *Recorder) Login(created bool) {
	if r == nil {
		return
	}
	label := "false"
	if created {
		label = "true"
	}
	r.logins.WithLabelValues(label).Inc()
}

func (r *Recorder) GuessAccepted() {
	if r == nil {
		return
	}
	r.guesses.Inc()
}

func (r *Recorder) Rejected(code string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(code).Inc()
}

func (r *Recorder) Settled(winners int) {
	if r == nil {
		return
	}
	r.settlements.Inc()
	r.winners.Add(float64(winners))
}

func (r *Recorder) RoundOpen(open bool) {
	if r == nil {
		return
	}
	if open {
		r.roundOpen.Set(1)
	} else {
		r.roundOpen.Set(0)
	}
}

func (r *Recorder) StoreError(op string) {
	if r == nil {
		return
	}
	r.storeErrors.WithLabelValues(op).Inc()
}
