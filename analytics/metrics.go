package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csi_frames_processed_total",
			Help: "Total number of CSI frames run through the detector stages",
		},
	)

	framesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csi_frames_dropped_total",
			Help: "Total number of CSI frames dropped before or during detection",
		},
		[]string{"reason"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csi_events_dropped_total",
			Help: "Total number of detections or feature rows dropped because their queue was full",
		},
		[]string{"queue"},
	)

	motionEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csi_motion_events_total",
			Help: "Total number of reported motion events",
		},
	)

	motionSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csi_motion_suppressed_total",
			Help: "Motion above threshold that was not reported because of the cooldown",
		},
	)

	motionScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csi_motion_mean_diff",
			Help: "Latest mean frame-to-frame difference",
		},
	)

	motionThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csi_motion_threshold",
			Help: "Latest dynamic motion threshold",
		},
	)

	postureLabelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csi_posture_labels_total",
			Help: "Total number of posture classifications by label",
		},
		[]string{"label"},
	)

	presenceState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csi_presence",
			Help: "1 when presence is detected, 0 otherwise",
		},
	)

	profileBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csi_profile_builds_total",
			Help: "Reference profile build attempts by label and outcome",
		},
		[]string{"label", "outcome"},
	)
)

