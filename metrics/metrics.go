// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camstream"

var (
	FramesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_captured_total",
		Help:      "Frames read from a capture source.",
	}, []string{"source"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Failed opens or reads that forced a reconnect.",
	}, []string{"source"})

	Loops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "file_loops_total",
		Help:      "Times a local file was rewound for looped replay.",
	}, []string{"source"})

	// FetcherState is 1 for the current state of each source and 0 otherwise.
	FetcherState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fetcher_state",
		Help:      "Acquisition state per source.",
	}, []string{"source", "state"})

	Viewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "viewers",
		Help:      "Open MJPEG connections per source.",
	}, []string{"source"})

	ChunksSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_sent_total",
		Help:      "Multipart chunks written to viewers.",
	}, []string{"channel", "placeholder"})

	EncodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "encode_seconds",
		Help:      "Time spent reducing and encoding one chunk.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
