// Package metrics exposes the admission and connection lifecycle of a
// running Mesh as Prometheus metrics, the same registry-plus-handler
// shape the pack's cache server uses for its request metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodegossip/gossipmesh"
)

var (
	// Registry is a dedicated registry rather than the global default,
	// so embedding gossipmesh in a larger process never collides with
	// that process's own metric names.
	Registry = prometheus.NewRegistry()

	messagesAdmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "messages_admitted_total",
			Help:      "Messages freshly admitted into a node's seen cache, by verb.",
		},
		[]string{"verb"},
	)

	messagesDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "messages_duplicate_total",
			Help:      "Messages dropped because their id was already in the seen cache.",
		},
		[]string{"verb"},
	)

	messagesExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "messages_expired_total",
			Help:      "Messages dropped for TTL expiry, split by soft/hard band.",
		},
		[]string{"verb", "band"},
	)

	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gossipmesh",
			Name:      "connections_open",
			Help:      "Live Socket Owners currently registered in the Connection Registry.",
		},
	)
)

func init() {
	Registry.MustRegister(messagesAdmitted, messagesDuplicate, messagesExpired, connectionsOpen)
}

// Handler exposes /metrics for scraping. Mount it with
// mux.Handle("/metrics", metrics.Handler()).
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Hook implements gossipmesh.EventHook, feeding admission and connection
// events into the package's Prometheus vectors. Pass it to
// gossipmesh.WithEvents when creating a Mesh.
type Hook struct{}

func (Hook) OnAdmitted(_ uint64, m gossipmesh.Message) {
	messagesAdmitted.WithLabelValues(m.Verb).Inc()
}

func (Hook) OnDuplicate(_ uint64, m gossipmesh.Message) {
	messagesDuplicate.WithLabelValues(m.Verb).Inc()
}

func (Hook) OnExpired(_ uint64, m gossipmesh.Message, hard bool) {
	band := "soft"
	if hard {
		band = "hard"
	}
	messagesExpired.WithLabelValues(m.Verb, band).Inc()
}

func (Hook) OnConnectionOpened(string) {
	connectionsOpen.Inc()
}

func (Hook) OnConnectionClosed(string) {
	connectionsOpen.Dec()
}
