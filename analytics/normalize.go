package analytics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientHistory = errors.New("fewer than two frames in window")
	ErrDegenerateSignal    = errors.New("amplitude has zero or undefined standard deviation")
	ErrShapeMismatch       = errors.New("frame shape does not match window")
)

// Clip bounds every amplitude to [0, ceiling] and returns a new matrix.
func Clip(amplitude mat.Matrix, ceiling float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		switch {
		case v < 0:
			return 0
		case v > ceiling:
			return ceiling
		}
		return v
	}, amplitude)
	return &out
}

// Normalize z-scores the whole matrix: (x - mean) / std, using the
// population standard deviation over every cell.
func Normalize(amplitude *mat.Dense) (*mat.Dense, error) {
	mean, std := stat.PopMeanStdDev(cells(amplitude), nil)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return nil, ErrDegenerateSignal
	}

	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return (v - mean) / std
	}, amplitude)
	return &out, nil
}

// cells returns the matrix values in row-major order without padding.
func cells(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	out := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		out = append(out, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return out
}

// meanAbsDiff is mean(|a - b|) over every cell.
func meanAbsDiff(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += math.Abs(a.At(i, j) - b.At(i, j))
		}
	}
	return sum / float64(r*c)
}

// MeanFrameDifference averages meanAbsDiff over consecutive frame pairs.
func MeanFrameDifference(frames []*mat.Dense) (float64, error) {
	if len(frames) < 2 {
		return 0, ErrInsufficientHistory
	}
	var total float64
	for i := 1; i < len(frames); i++ {
		total += meanAbsDiff(frames[i], frames[i-1])
	}
	return total / float64(len(frames)-1), nil
}
