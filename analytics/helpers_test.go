package analytics

import (
	"time"

	"csi-motion-monitor/models"

	"gonum.org/v1/gonum/mat"
)

var testEpoch = time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

// column builds an n x 1 amplitude matrix.
func column(values ...float64) *mat.Dense {
	return mat.NewDense(len(values), 1, append([]float64(nil), values...))
}

func frameAt(offset time.Duration, values ...float64) models.CSIFrame {
	return models.NewAmplitudeFrame(testEpoch.Add(offset), column(values...))
}
