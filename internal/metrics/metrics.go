// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCapturedTotal counts frames received from the driver by session
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s2onet_frames_captured_total",
			Help: "Total number of frames received from the capture driver",
		},
		[]string{"session"},
	)

	// FramesEvictedTotal counts frames dropped from the packet store on overflow or resize
	FramesEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s2onet_frames_evicted_total",
			Help: "Total number of frames evicted from the packet store",
		},
	)

	// StoreFrames tracks the current packet store length
	StoreFrames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "s2onet_store_frames",
			Help: "Number of frames currently held in the packet store",
		},
	)

	// SessionState is 1 for the state a session is in and 0 for the others
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "s2onet_session_state",
			Help: "Current capture session state (1 = active state)",
		},
		[]string{"session", "state"},
	)

	// DriverErrorsTotal counts driver failures by operation and error kind
	DriverErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s2onet_driver_errors_total",
			Help: "Total number of capture driver errors",
		},
		[]string{"op", "kind"},
	)

	// StopTimeoutsTotal counts stops that gave up on the worker, each one leaks a handle
	StopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s2onet_stop_timeouts_total",
			Help: "Total number of stop timeouts (leaked driver handles)",
		},
	)

	// DecodedRecordsTotal counts decoded records by kind
	DecodedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s2onet_decoded_records_total",
			Help: "Total number of frames decoded, by record kind",
		},
		[]string{"kind"},
	)

	// ThroughputBytesPerSecond tracks the last sampled adapter rate
	ThroughputBytesPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "s2onet_throughput_bytes_per_second",
			Help: "Last sampled adapter throughput in bytes per second",
		},
		[]string{"interface", "direction"},
	)
)
