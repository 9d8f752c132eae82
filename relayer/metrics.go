package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics records relay activity. A nil *PrometheusMetrics records nothing.
type PrometheusMetrics struct {
	Registry              *prometheus.Registry
	PacketObservedCounter *prometheus.CounterVec
	PacketRelayedCounter  *prometheus.CounterVec
	LatestHeightGauge     *prometheus.GaugeVec
	ClientUpdateCounter   *prometheus.CounterVec
	TxFailureError        *prometheus.CounterVec
	RelayRoundCounter     *prometheus.CounterVec
}

func (m *PrometheusMetrics) AddPacketsObserved(pathName, chain, eventType string, count int) {
	if m == nil {
		return
	}
	m.PacketObservedCounter.WithLabelValues(pathName, chain, eventType).Add(float64(count))
}

func (m *PrometheusMetrics) AddPacketsRelayed(pathName, chain, eventType string, count int) {
	if m == nil {
		return
	}
	m.PacketRelayedCounter.WithLabelValues(pathName, chain, eventType).Add(float64(count))
}

func (m *PrometheusMetrics) SetLatestHeight(chain string, height int64) {
	if m == nil {
		return
	}
	m.LatestHeightGauge.WithLabelValues(chain).Set(float64(height))
}

func (m *PrometheusMetrics) IncClientUpdates(pathName, chain, clientID string) {
	if m == nil {
		return
	}
	m.ClientUpdateCounter.WithLabelValues(pathName, chain, clientID).Inc()
}

func (m *PrometheusMetrics) IncTxFailure(pathName, chain, errDesc string) {
	if m == nil {
		return
	}
	m.TxFailureError.WithLabelValues(pathName, chain, errDesc).Inc()
}

func (m *PrometheusMetrics) IncRelayRounds(pathName, result string) {
	if m == nil {
		return
	}
	m.RelayRoundCounter.WithLabelValues(pathName, result).Inc()
}

func NewPrometheusMetrics() *PrometheusMetrics {
	packetLabels := []string{"path_name", "chain", "type"}
	heightLabels := []string{"chain"}
	clientLabels := []string{"path_name", "chain", "client_id"}
	txFailureLabels := []string{"path_name", "chain", "cause"}
	roundLabels := []string{"path_name", "result"}
	registry := prometheus.NewRegistry()
	registerer := promauto.With(registry)
	return &PrometheusMetrics{
		Registry: registry,
		PacketObservedCounter: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "link_relayer_observed_packets",
			Help: "The total number of pending packets, acknowledgements and timeouts observed",
		}, packetLabels),
		PacketRelayedCounter: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "link_relayer_relayed_packets",
			Help: "The total number of packets, acknowledgements and timeouts relayed",
		}, packetLabels),
		LatestHeightGauge: registerer.NewGaugeVec(prometheus.GaugeOpts{
			Name: "link_relayer_chain_latest_height",
			Help: "The current height of the chain",
		}, heightLabels),
		ClientUpdateCounter: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "link_relayer_client_updates",
			Help: "The total number of light client updates submitted",
		}, clientLabels),
		TxFailureError: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "link_relayer_tx_errors_total",
			Help: "The total number of tx failures broken up into categories",
		}, txFailureLabels),
		RelayRoundCounter: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "link_relayer_relay_rounds_total",
			Help: "The total number of relay rounds by result",
		}, roundLabels),
	}
}
