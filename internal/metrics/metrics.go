package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	gatewayStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      "starts_total",
			Help:      "Number of successful gateway starts.",
		},
	)
	gatewayStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      "stops_total",
			Help:      "Number of requested gateway stops by result (graceful or forced).",
		}, []string{"result"},
	)
	gatewayExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      "exits_total",
			Help:      "Number of observed gateway exits by exit code.",
		}, []string{"code"},
	)
	gatewayRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      "running",
			Help:      "1 while a gateway process is tracked and alive.",
		},
	)
	gatewayLogLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      "log_lines_total",
			Help:      "Number of output lines drained from the gateway.",
		},
	)
	commandRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "command",
			Name:      "runs_total",
			Help:      "Number of one-shot agent tool invocations by subcommand and outcome.",
		}, []string{"subcommand", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clawpanel",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Wall time of one-shot agent tool invocations.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"subcommand"},
	)
	configWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clawpanel",
			Subsystem: "config",
			Name:      "writes_total",
			Help:      "Number of configuration document writes by result.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{gatewayStarts, gatewayStops, gatewayExits, gatewayRunning, gatewayLogLines, commandRuns, commandDuration, configWrites}
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncGatewayStart() {
	if regOK.Load() {
		gatewayStarts.Inc()
	}
}

func IncGatewayStop(forced bool) {
	if regOK.Load() {
		result := "graceful"
		if forced {
			result = "forced"
		}
		gatewayStops.WithLabelValues(result).Inc()
	}
}

func IncGatewayExit(code string) {
	if regOK.Load() {
		gatewayExits.WithLabelValues(code).Inc()
	}
}

func SetGatewayRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		gatewayRunning.Set(v)
	}
}

func IncGatewayLogLine() {
	if regOK.Load() {
		gatewayLogLines.Inc()
	}
}

func ObserveCommand(subcommand, outcome string, seconds float64) {
	if regOK.Load() {
		commandRuns.WithLabelValues(subcommand, outcome).Inc()
		commandDuration.WithLabelValues(subcommand).Observe(seconds)
	}
}

func IncConfigWrite(ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "error"
		}
		configWrites.WithLabelValues(result).Inc()
	}
}
