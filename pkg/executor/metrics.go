package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virshlab_commands_total",
		Help: "External command invocations by binary name and outcome.",
	}, []string{"command", "outcome"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "virshlab_command_duration_seconds",
		Help:    "Wall-clock duration of external command invocations.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"command"})
)

const (
	outcomeOK      = "ok"
	outcomeExit    = "exit"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

func observeCommand(name, outcome string, start time.Time) {
	commandsTotal.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
