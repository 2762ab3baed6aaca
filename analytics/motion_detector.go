package analytics

import (
	"errors"
	"time"

	"csi-motion-monitor/models"

	"go.uber.org/zap"
)

type MotionState int

const (
	MotionIdle MotionState = iota
	MotionCooling
)

func (s MotionState) String() string {
	if s == MotionCooling {
		return "cooling"
	}
	return "idle"
}

type MotionConfig struct {
	WindowSize    int
	BaseThreshold float64
	SensitivityK  float64
	Cooldown      time.Duration
	ClipCeiling   float64
}

func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		WindowSize:    3,
		BaseThreshold: 0.12,
		SensitivityK:  2.0,
		Cooldown:      time.Second,
		ClipCeiling:   3000,
	}
}

// MotionStep describes what happened to one frame.
type MotionStep struct {
	MeanDiff   float64
	Threshold  float64
	Fired      bool
	Suppressed bool
}

// MotionDetector reports motion when the mean consecutive-frame difference
// in its window exceeds the dynamic threshold. After an event it stays in
// the cooling state until a frame arrives more than Cooldown after the
// event; all timing uses frame timestamps.
type MotionDetector struct {
	cfg           MotionConfig
	window        *SlidingWindow
	estimator     *ThresholdEstimator
	state         MotionState
	lastDetection time.Time
	logger        *zap.Logger
}

func NewMotionDetector(cfg MotionConfig, logger *zap.Logger) *MotionDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MotionDetector{
		cfg:       cfg,
		window:    NewSlidingWindow(cfg.WindowSize),
		estimator: NewThresholdEstimator(cfg.BaseThreshold, cfg.SensitivityK),
		logger:    logger,
	}
}

func (md *MotionDetector) Name() string { return string(models.KindMotion) }

func (md *MotionDetector) State() MotionState { return md.state }

func (md *MotionDetector) Window() *SlidingWindow { return md.window }

// Detect runs one frame through the detector. ErrDegenerateSignal means the
// frame was dropped; ErrInsufficientHistory means no decision was possible.
func (md *MotionDetector) Detect(frame models.CSIFrame) (MotionStep, error) {
	now := frame.Timestamp
	if md.state == MotionCooling && now.Sub(md.lastDetection) > md.cfg.Cooldown {
		md.state = MotionIdle
	}

	clipped := Clip(frame.Amplitude, md.cfg.ClipCeiling)
	normalized, err := Normalize(clipped)
	if err != nil {
		return MotionStep{}, err
	}

	var shapeErr error
	if latest := md.window.Latest(); latest != nil {
		r1, c1 := latest.Dims()
		r2, c2 := normalized.Dims()
		if r1 != r2 || c1 != c2 {
			md.window.Reset()
			shapeErr = ErrShapeMismatch
		}
	}
	md.window.Add(normalized)

	if md.window.Len() < 2 {
		if shapeErr != nil {
			return MotionStep{}, shapeErr
		}
		return MotionStep{}, ErrInsufficientHistory
	}

	frames := md.window.Frames()
	meanDiff, err := MeanFrameDifference(frames)
	if err != nil {
		return MotionStep{}, err
	}
	step := MotionStep{
		MeanDiff:  meanDiff,
		Threshold: md.estimator.EstimateFrames(frames),
	}

	if step.MeanDiff > step.Threshold {
		if md.state == MotionCooling {
			step.Suppressed = true
		} else {
			step.Fired = true
			md.state = MotionCooling
			md.lastDetection = now
		}
	}
	return step, nil
}

// Observe implements Stage.
func (md *MotionDetector) Observe(frame models.CSIFrame) []models.Detection {
	step, err := md.Detect(frame)
	switch {
	case errors.Is(err, ErrDegenerateSignal):
		framesDroppedTotal.WithLabelValues("degenerate").Inc()
		md.logger.Debug("Skipping degenerate frame", zap.Time("frame_time", frame.Timestamp))
		return nil
	case errors.Is(err, ErrShapeMismatch):
		framesDroppedTotal.WithLabelValues("shape_change").Inc()
		md.logger.Warn("Frame shape changed, motion window reset",
			zap.Int("subcarriers", frame.Subcarriers()),
			zap.Int("antennas", frame.Antennas()))
		return nil
	case err != nil:
		return nil
	}

	motionScore.Set(step.MeanDiff)
	motionThreshold.Set(step.Threshold)

	if step.Suppressed {
		motionSuppressedTotal.Inc()
		return nil
	}
	if !step.Fired {
		return nil
	}

	motionEventsTotal.Inc()
	md.logger.Info("Motion detected",
		zap.Time("frame_time", frame.Timestamp),
		zap.Float64("mean_diff", step.MeanDiff),
		zap.Float64("threshold", step.Threshold))

	return []models.Detection{{
		Kind:      models.KindMotion,
		Timestamp: frame.Timestamp,
		Motion: &models.MotionEvent{
			Timestamp: frame.Timestamp,
			MeanDiff:  step.MeanDiff,
			Threshold: step.Threshold,
		},
	}}
}
