package analytics

import (
	"testing"
	"time"

	"csi-motion-monitor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// alternating returns frame n of a sequence that flips between two
// anti-correlated patterns, so every consecutive pair differs maximally.
func alternating(n int, step time.Duration) models.CSIFrame {
	if n%2 == 0 {
		return frameAt(time.Duration(n)*step, 1, 0, 1, 0)
	}
	return frameAt(time.Duration(n)*step, 0, 1, 0, 1)
}

func sensitiveConfig() MotionConfig {
	cfg := DefaultMotionConfig()
	cfg.SensitivityK = 0.5
	return cfg
}

func TestMotionDetector_NeedsTwoFrames(t *testing.T) {
	md := NewMotionDetector(sensitiveConfig(), zap.NewNop())

	_, err := md.Detect(alternating(0, 100*time.Millisecond))
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	step, err := md.Detect(alternating(1, 100*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, step.MeanDiff, 1e-9)
	assert.InDelta(t, 0.62, step.Threshold, 1e-9)
	assert.True(t, step.Fired)
	assert.Equal(t, MotionCooling, md.State())
}

func TestMotionDetector_Cooldown(t *testing.T) {
	md := NewMotionDetector(sensitiveConfig(), zap.NewNop())

	var fired []time.Duration
	suppressed := 0
	for n := 0; n <= 12; n++ {
		frame := alternating(n, 100*time.Millisecond)
		step, err := md.Detect(frame)
		if n == 0 {
			require.ErrorIs(t, err, ErrInsufficientHistory)
			continue
		}
		require.NoError(t, err)
		if step.Fired {
			fired = append(fired, frame.Timestamp.Sub(testEpoch))
		}
		if step.Suppressed {
			suppressed++
		}
	}

	// 1100ms is exactly one cooldown after the first event and is still
	// suppressed; only a strictly later frame re-arms the detector.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 1200 * time.Millisecond}, fired)
	assert.Equal(t, 10, suppressed)
}

func TestMotionDetector_DefaultSensitivityIgnoresFlipping(t *testing.T) {
	md := NewMotionDetector(DefaultMotionConfig(), zap.NewNop())

	for n := 0; n < 10; n++ {
		step, _ := md.Detect(alternating(n, 100*time.Millisecond))
		assert.False(t, step.Fired, "frame %d", n)
	}
	assert.Equal(t, MotionIdle, md.State())
}

func TestMotionDetector_Deterministic(t *testing.T) {
	run := func() []MotionStep {
		md := NewMotionDetector(sensitiveConfig(), zap.NewNop())
		var steps []MotionStep
		for n := 0; n < 20; n++ {
			values := []float64{float64(n % 3), float64(n % 5), float64(n % 7), 4}
			step, _ := md.Detect(frameAt(time.Duration(n)*50*time.Millisecond, values...))
			steps = append(steps, step)
		}
		return steps
	}

	assert.Equal(t, run(), run())
}

func TestMotionDetector_DegenerateFrameDropped(t *testing.T) {
	md := NewMotionDetector(sensitiveConfig(), zap.NewNop())
	_, _ = md.Detect(alternating(0, time.Millisecond))

	_, err := md.Detect(frameAt(time.Millisecond, 5, 5, 5, 5))
	assert.ErrorIs(t, err, ErrDegenerateSignal)
	assert.Equal(t, 1, md.Window().Len())

	assert.Empty(t, md.Observe(frameAt(2*time.Millisecond, 0, 0, 0, 0)))
}

func TestMotionDetector_ShapeChangeResetsWindow(t *testing.T) {
	md := NewMotionDetector(sensitiveConfig(), zap.NewNop())
	_, _ = md.Detect(alternating(0, time.Millisecond))
	_, _ = md.Detect(alternating(1, time.Millisecond))
	require.Equal(t, 2, md.Window().Len())

	_, err := md.Detect(frameAt(2*time.Millisecond, 1, 0))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, 1, md.Window().Len())

	step, err := md.Detect(frameAt(3*time.Millisecond, 0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, step.MeanDiff, 1e-9)
}

func TestMotionDetector_Observe(t *testing.T) {
	md := NewMotionDetector(sensitiveConfig(), zap.NewNop())

	assert.Empty(t, md.Observe(alternating(0, 100*time.Millisecond)))

	detections := md.Observe(alternating(1, 100*time.Millisecond))
	require.Len(t, detections, 1)
	d := detections[0]
	assert.Equal(t, models.KindMotion, d.Kind)
	require.NotNil(t, d.Motion)
	assert.Equal(t, testEpoch.Add(100*time.Millisecond), d.Motion.Timestamp)
	assert.Greater(t, d.Motion.MeanDiff, d.Motion.Threshold)

	assert.Empty(t, md.Observe(alternating(2, 100*time.Millisecond)))
}

func TestMotionDetector_IdenticalFramesNeverFire(t *testing.T) {
	cfg := sensitiveConfig()
	cfg.SensitivityK = 0
	cfg.BaseThreshold = 0
	md := NewMotionDetector(cfg, zap.NewNop())

	_, err := md.Detect(frameAt(0, 1, 2, 3, 4))
	require.ErrorIs(t, err, ErrInsufficientHistory)

	step, err := md.Detect(frameAt(100*time.Millisecond, 1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, 0.0, step.MeanDiff)
	assert.False(t, step.Fired)
}
