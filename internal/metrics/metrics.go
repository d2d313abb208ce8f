// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsParsedTotal counts completed requests by method
	RequestsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtspd_requests_parsed_total",
			Help: "Total number of RTSP requests parsed to completion",
		},
		[]string{"source", "method"},
	)

	// ParseErrorsTotal counts parse failures by reason
	ParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtspd_parse_errors_total",
			Help: "Total number of RTSP parse errors",
		},
		[]string{"source", "reason"},
	)

	// ConnectionsActive tracks currently open client connections
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtspd_connections_active",
			Help: "Number of open RTSP client connections",
		},
	)

	// ConnectionsTotal counts accepted connections
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rtspd_connections_total",
			Help: "Total number of accepted RTSP client connections",
		},
	)

	// InterleavedBytesSkipped counts bytes of '$' framed data skipped between requests
	InterleavedBytesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtspd_interleaved_bytes_skipped_total",
			Help: "Total number of interleaved binary bytes skipped between requests",
		},
		[]string{"source"},
	)

	// SinkErrorsTotal counts failures delivering records
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtspd_sink_errors_total",
			Help: "Total number of records the sink failed to deliver",
		},
		[]string{"sink"},
	)

	// RequestBytes observes the size of complete requests on the wire
	RequestBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtspd_request_bytes",
			Help:    "Size in bytes of complete RTSP requests",
			Buckets: prometheus.ExponentialBuckets(32, 2, 10), // 32B to 16KiB
		},
	)
)

// Source label values.
const (
	SourceServer = "server"
	SourceReplay = "replay"
)
