// Package metrics records deployment outcomes as Prometheus metrics.
//
// Metrics live on a private registry. Since leaf runs as a short lived process,
// they are exported by writing a textfile for node_exporter's textfile
// collector rather than by serving an endpoint.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
)

const namespace = "leaf"

// Metrics implements deploy.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Deployments        *prometheus.CounterVec
	Ops                *prometheus.CounterVec
	Rollbacks          *prometheus.CounterVec
	DeploymentDuration *prometheus.GaugeVec
}

// New creates Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Total number of finished deployments",
		}, []string{"plan", "status"}),
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Total number of executed change ops",
		}, []string{"plan", "op", "status"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of rollback attempts",
		}, []string{"plan", "status"}),
		DeploymentDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Duration of the most recent deployment in seconds",
		}, []string{"plan"}),
	}

	m.registry.MustRegister(m.Deployments, m.Ops, m.Rollbacks, m.DeploymentDuration)
	return m
}

// Registry returns the private registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) DeploymentFinished(plan string, status store.DeploymentStatus, duration time.Duration) {
	m.Deployments.WithLabelValues(plan, string(status)).Inc()
	m.DeploymentDuration.WithLabelValues(plan).Set(duration.Seconds())
}

func (m *Metrics) OpFinished(plan string, op schema.OpType, status store.ChangeStatus) {
	m.Ops.WithLabelValues(plan, string(op), string(status)).Inc()
}

func (m *Metrics) RollbackFinished(plan string, status store.ChangeStatus) {
	m.Rollbacks.WithLabelValues(plan, string(status)).Inc()
}

// WriteToTextfile writes the current values to path in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
