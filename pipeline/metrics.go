package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_frames_processed_total",
		Help: "Frames published to the store.",
	})
	detectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_detect_failures_total",
		Help: "Frames dropped because inference failed.",
	})
	encodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_encode_failures_total",
		Help: "Frames not published because JPEG encoding failed.",
	})
	logFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_log_failures_total",
		Help: "Detection log appends that failed.",
	})
	sourceSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detectcam_source_switches_total",
		Help: "Applied source switch requests by result.",
	}, []string{"result"})
	fpsEstimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detectcam_fps",
		Help: "Smoothed inference frame rate.",
	})
)
