// Package metrics exports lens evaluation counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"typelens/internal/lens"
)

// Metrics implements lens.Observer on top of a Prometheus registry.
type Metrics struct {
	passes           *prometheus.CounterVec
	annotations      *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	hostFailures     *prometheus.CounterVec
	cancelledPasses  prometheus.Counter
	trackedDocuments prometheus.Gauge
}

// New registers the lens metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "typelens_passes_total",
			Help: "Evaluation passes started, by document language.",
		}, []string{"language"}),

		annotations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "typelens_annotations_total",
			Help: "Annotations handed to the editor, by document language.",
		}, []string{"language"}),

		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "typelens_resolutions_total",
			Help: "Resolved annotations, by follow-up action.",
		}, []string{"action"}),

		hostFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "typelens_host_call_failures_total",
			Help: "Outline or reference queries that failed.",
		}, []string{"op"}),

		cancelledPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "typelens_cancelled_total",
			Help: "Provide or resolve calls dropped because their pass was cancelled or superseded.",
		}),

		trackedDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "typelens_tracked_documents",
			Help: "Documents currently carrying an unused-symbol highlight state.",
		}),
	}
}

func (m *Metrics) PassStarted(languageID string) {
	m.passes.WithLabelValues(languageID).Inc()
}

func (m *Metrics) AnnotationsProvided(languageID string, n int) {
	m.annotations.WithLabelValues(languageID).Add(float64(n))
}

func (m *Metrics) Resolved(action lens.ActionKind) {
	m.resolutions.WithLabelValues(action.String()).Inc()
}

func (m *Metrics) HostCallFailed(op string) {
	m.hostFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) PassCancelled() {
	m.cancelledPasses.Inc()
}

func (m *Metrics) TrackedDocuments(n int) {
	m.trackedDocuments.Set(float64(n))
}

var _ lens.Observer = (*Metrics)(nil)
