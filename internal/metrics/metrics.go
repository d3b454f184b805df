// Package metrics exposes Prometheus counters and gauges for Instance
// lifecycle events. It is intentionally separate from internal/statusapi:
// spec §4.5 pins the status API's interface to exactly `GET /` and
// `GET /api/status`, so Prometheus is served on its own optional listener
// instead of widening that interface (SPEC_FULL.md §D).
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	instanceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "instance",
			Name:      "starts_total",
			Help:      "Number of successful spawns per program.",
		}, []string{"program"},
	)
	instanceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "instance",
			Name:      "restarts_total",
			Help:      "Number of auto-restarts issued by the Process Monitor.",
		}, []string{"program"},
	)
	instanceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "instance",
			Name:      "stops_total",
			Help:      "Number of process exits observed, graceful or otherwise.",
		}, []string{"program"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskmaster",
			Subsystem: "instance",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between Instance states.",
		}, []string{"program", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taskmaster",
			Subsystem: "instance",
			Name:      "current_state",
			Help:      "1 if the named instance is currently in the given state, else 0.",
		}, []string{"instance", "state"},
	)
)

// Register registers all collectors with r. Safe to call more than once;
// an already-registered collector is treated as success.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{instanceStarts, instanceRestarts, instanceStops, stateTransitions, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the registered collectors for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Recorder is the zero-size value internal/supervisor records lifecycle
// events through. Every method is a no-op until Register has succeeded, so
// a zero Recorder needs no setup when metrics are disabled.
type Recorder struct{}

func (Recorder) ObserveStart(program string) {
	if regOK.Load() {
		instanceStarts.WithLabelValues(program).Inc()
	}
}

func (Recorder) ObserveRestart(program string) {
	if regOK.Load() {
		instanceRestarts.WithLabelValues(program).Inc()
	}
}

func (Recorder) ObserveStop(program string) {
	if regOK.Load() {
		instanceStops.WithLabelValues(program).Inc()
	}
}

func (Recorder) RecordTransition(program, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(program, from, to).Inc()
	}
}

func (Recorder) SetCurrentState(instance, state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1.0
		}
		currentState.WithLabelValues(instance, state).Set(v)
	}
}
