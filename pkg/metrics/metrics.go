package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds only dlctl collectors so textfile exports stay small.
	Registry = prometheus.NewRegistry()

	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlctl_login_attempts_total",
		Help: "Total number of OAuth flow runs started",
	}, []string{"flow"})
	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlctl_login_outcomes_total",
		Help: "Terminal outcomes of OAuth flow runs",
	}, []string{"flow", "outcome"})
	LoginDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dlctl_login_duration_seconds",
		Help:    "Duration of OAuth flow runs from start to terminal outcome",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"flow"})
	LoginFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlctl_login_fallbacks_total",
		Help: "Number of times the orchestrator moved on to the next enabled flow",
	}, []string{"from", "to"})

	// Probe results: enabled, disabled or error (transport failure, treated as disabled).
	ProbeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlctl_probe_results_total",
		Help: "Capability probe classifications per flow",
	}, []string{"flow", "result"})

	DevicePolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dlctl_device_polls_total",
		Help: "Device flow token polls grouped by response",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(LoginAttempts)
	Registry.MustRegister(LoginOutcomes)
	Registry.MustRegister(LoginDuration)
	Registry.MustRegister(LoginFallbacks)
	Registry.MustRegister(ProbeResults)
	Registry.MustRegister(DevicePolls)
}

// WriteTextfile dumps the dlctl metrics in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
