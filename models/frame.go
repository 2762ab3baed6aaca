package models

import (
	"errors"
	"fmt"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrDecode marks a raw capture frame that could not be turned into a CSIFrame.
var ErrDecode = errors.New("csi decode error")

// CSIFrame is one channel measurement: amplitude per subcarrier (rows)
// and antenna (columns). Frames are never mutated after construction.
type CSIFrame struct {
	Timestamp time.Time
	Amplitude *mat.Dense
}

// NewCSIFrame builds a frame from complex CSI, one slice per antenna.
func NewCSIFrame(ts time.Time, csi [][]complex128) (CSIFrame, error) {
	if len(csi) == 0 || len(csi[0]) == 0 {
		return CSIFrame{}, fmt.Errorf("%w: empty csi matrix", ErrDecode)
	}

	subcarriers := len(csi[0])
	amp := mat.NewDense(subcarriers, len(csi), nil)
	for ant, column := range csi {
		if len(column) != subcarriers {
			return CSIFrame{}, fmt.Errorf("%w: antenna %d has %d subcarriers, want %d",
				ErrDecode, ant, len(column), subcarriers)
		}
		for sc, v := range column {
			amp.Set(sc, ant, cmplx.Abs(v))
		}
	}

	return CSIFrame{Timestamp: ts, Amplitude: amp}, nil
}

// NewAmplitudeFrame wraps an existing amplitude matrix.
func NewAmplitudeFrame(ts time.Time, amplitude *mat.Dense) CSIFrame {
	return CSIFrame{Timestamp: ts, Amplitude: amplitude}
}

func (f CSIFrame) Validate() error {
	if f.Amplitude == nil || f.Amplitude.IsEmpty() {
		return errors.New("amplitude matrix is required")
	}
	if f.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

func (f CSIFrame) Subcarriers() int {
	r, _ := f.Amplitude.Dims()
	return r
}

func (f CSIFrame) Antennas() int {
	_, c := f.Amplitude.Dims()
	return c
}

// SameShape reports whether both frames cover the same subcarriers and antennas.
func (f CSIFrame) SameShape(other CSIFrame) bool {
	r1, c1 := f.Amplitude.Dims()
	r2, c2 := other.Amplitude.Dims()
	return r1 == r2 && c1 == c2
}

// Column returns a copy of the amplitudes seen by one antenna.
func (f CSIFrame) Column(antenna int) []float64 {
	return mat.Col(nil, antenna, f.Amplitude)
}
