// Package metrics implements Prometheus metrics for the capture
// pipeline and the statistics engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts frames delivered by the capture source.
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_packets_total",
			Help: "Total number of link-layer frames captured",
		},
	)

	// QueueDropsTotal counts frames dropped because the processing
	// queue was full.
	QueueDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_queue_drops_total",
			Help: "Total number of captured frames dropped before processing",
		},
	)

	// LinkDiscardsTotal counts frames discarded at the link layer
	// (unsupported link type or non-IPv4 payload).
	LinkDiscardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_link_discards_total",
			Help: "Total number of frames discarded by the link-layer decoder",
		},
	)

	// DecodeErrorsTotal counts malformed packets dropped during decode.
	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_decode_errors_total",
			Help: "Total number of packets dropped due to decode errors",
		},
	)

	// FragmentsActive tracks IPv4 datagrams awaiting reassembly.
	FragmentsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "star_meter_ip_fragments_active",
			Help: "Number of fragmented IPv4 datagrams awaiting reassembly",
		},
	)

	// SegmentsCached tracks out-of-order TCP segments held for the
	// locked flow.
	SegmentsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "star_meter_tcp_segments_cached",
			Help: "Number of out-of-order TCP segments cached for the locked flow",
		},
	)

	// ServerLocksTotal counts scene-server endpoint switches.
	ServerLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_server_locks_total",
			Help: "Total number of times a scene server flow was locked",
		},
	)

	// FramesTotal counts application frames produced by the splitter.
	FramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "star_meter_app_frames_total",
			Help: "Total number of length-prefixed application frames split",
		},
	)

	// EventsTotal counts statistics engine mutations by kind.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "star_meter_events_total",
			Help: "Total number of combat events recorded",
		},
		[]string{"type"},
	)

	// WSSubscribers tracks connected WebSocket subscribers.
	WSSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "star_meter_ws_subscribers",
			Help: "Number of connected WebSocket subscribers",
		},
	)
)
