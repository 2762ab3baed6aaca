package analytics

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ThresholdEstimator derives the motion threshold from the variance of the
// frames currently held in a window: baseThreshold + sensitivityK * meanStd.
type ThresholdEstimator struct {
	baseThreshold float64
	sensitivityK  float64
}

func NewThresholdEstimator(baseThreshold, sensitivityK float64) *ThresholdEstimator {
	return &ThresholdEstimator{
		baseThreshold: baseThreshold,
		sensitivityK:  sensitivityK,
	}
}

// Estimate returns 0 while the window holds fewer than two frames.
func (te *ThresholdEstimator) Estimate(window *SlidingWindow) float64 {
	return te.EstimateFrames(window.Frames())
}

func (te *ThresholdEstimator) EstimateFrames(frames []*mat.Dense) float64 {
	if len(frames) < 2 {
		return 0
	}
	return te.baseThreshold + te.sensitivityK*meanCellStdDev(frames)
}

// meanCellStdDev computes the population standard deviation of every cell
// across frames and averages the result.
func meanCellStdDev(frames []*mat.Dense) float64 {
	r, c := frames[0].Dims()
	series := make([]float64, len(frames))

	var total float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			for t, f := range frames {
				series[t] = f.At(i, j)
			}
			_, std := stat.PopMeanStdDev(series, nil)
			total += std
		}
	}
	return total / float64(r*c)
}
