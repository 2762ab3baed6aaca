package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestThresholdEstimator_NeedsTwoFrames(t *testing.T) {
	te := NewThresholdEstimator(0.12, 2.0)
	w := NewSlidingWindow(3)

	assert.Equal(t, 0.0, te.Estimate(w))

	w.Add(column(1, 2, 3))
	assert.Equal(t, 0.0, te.Estimate(w))
}

func TestThresholdEstimator_BasePlusScaledStd(t *testing.T) {
	te := NewThresholdEstimator(0.12, 2.0)
	frames := []*mat.Dense{column(0, 0), column(2, 2)}

	// Each cell is {0, 2}: population std 1.
	assert.InDelta(t, 0.12+2.0*1.0, te.EstimateFrames(frames), 1e-12)
}

func TestThresholdEstimator_MonotonicInSensitivity(t *testing.T) {
	frames := []*mat.Dense{
		column(0.3, -1.2, 0.9, 0.0),
		column(1.1, -0.4, 0.2, -0.9),
		column(-0.5, 0.7, 1.4, -1.6),
	}

	prev := math.Inf(-1)
	for _, k := range []float64{0, 0.1, 0.5, 1, 2, 4, 10} {
		got := NewThresholdEstimator(0.12, k).EstimateFrames(frames)
		assert.GreaterOrEqual(t, got, prev, "k=%v", k)
		prev = got
	}
}

func TestThresholdEstimator_AveragesCellStdDev(t *testing.T) {
	te := NewThresholdEstimator(0, 1)
	frames := []*mat.Dense{column(0, 1), column(2, 1), column(4, 1)}

	// Cell 0 is {0, 2, 4} with population std sqrt(8/3); cell 1 is constant.
	assert.InDelta(t, math.Sqrt(8.0/3.0)/2, te.EstimateFrames(frames), 1e-12)
}
