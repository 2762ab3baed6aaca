package analytics

import (
	"math/cmplx"

	"csi-motion-monitor/models"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

type PresenceConfig struct {
	Window      int
	SampleRate  float64
	BandLow     float64
	BandHigh    float64
	Threshold   float64
	ClipCeiling float64
}

func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		Window:      50,
		SampleRate:  10,
		BandLow:     0.1,
		BandHigh:    2.0,
		Threshold:   10000,
		ClipCeiling: 3000,
	}
}

// PresenceDetector looks for periodic amplitude fluctuation in the band
// typical of a breathing or fidgeting person.
type PresenceDetector struct {
	cfg     PresenceConfig
	window  *SlidingWindow
	fft     *fourier.FFT
	known   bool
	present bool
	logger  *zap.Logger
}

func NewPresenceDetector(cfg PresenceConfig, logger *zap.Logger) *PresenceDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window < 2 {
		cfg.Window = 2
	}
	return &PresenceDetector{
		cfg:    cfg,
		window: NewSlidingWindow(cfg.Window),
		fft:    fourier.NewFFT(cfg.Window),
		logger: logger,
	}
}

func (pd *PresenceDetector) Name() string { return string(models.KindPresence) }

// BandEnergy sums, over the FFT bins whose absolute frequency lies in the
// band, the magnitude averaged across cells. Mirrored negative-frequency
// bins are counted so the result matches a full complex FFT.
func (pd *PresenceDetector) BandEnergy(frames []*mat.Dense) float64 {
	n := len(frames)
	if n != pd.fft.Len() {
		pd.fft.Reset(n)
	}
	r, c := frames[0].Dims()

	bins := n/2 + 1
	magnitude := make([]float64, bins)
	series := make([]float64, n)
	coeffs := make([]complex128, bins)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			for t, f := range frames {
				series[t] = f.At(i, j)
			}
			coeffs = pd.fft.Coefficients(coeffs, series)
			for k, v := range coeffs {
				magnitude[k] += cmplx.Abs(v)
			}
		}
	}

	cellCount := float64(r * c)
	var energy float64
	for k := 0; k < bins; k++ {
		freq := pd.fft.Freq(k) * pd.cfg.SampleRate
		if freq < pd.cfg.BandLow || freq > pd.cfg.BandHigh {
			continue
		}
		weight := 2.0
		if k == 0 || (n%2 == 0 && k == n/2) {
			weight = 1
		}
		energy += weight * magnitude[k] / cellCount
	}
	return energy
}

// Evaluate adds a frame and returns the presence decision once the window
// is full.
func (pd *PresenceDetector) Evaluate(frame models.CSIFrame) (models.PresenceResult, bool) {
	clipped := Clip(frame.Amplitude, pd.cfg.ClipCeiling)
	if latest := pd.window.Latest(); latest != nil {
		r1, c1 := latest.Dims()
		r2, c2 := clipped.Dims()
		if r1 != r2 || c1 != c2 {
			pd.window.Reset()
		}
	}
	pd.window.Add(clipped)
	if pd.window.Len() < pd.window.Cap() {
		return models.PresenceResult{}, false
	}

	energy := pd.BandEnergy(pd.window.Frames())
	return models.PresenceResult{
		Present: energy > pd.cfg.Threshold,
		Energy:  energy,
	}, true
}

// Observe implements Stage. Only changes of the presence state are emitted.
func (pd *PresenceDetector) Observe(frame models.CSIFrame) []models.Detection {
	result, ok := pd.Evaluate(frame)
	if !ok {
		return nil
	}
	if pd.known && result.Present == pd.present {
		return nil
	}
	pd.known = true
	pd.present = result.Present

	if result.Present {
		presenceState.Set(1)
	} else {
		presenceState.Set(0)
	}
	pd.logger.Info("Presence changed",
		zap.Bool("present", result.Present),
		zap.Float64("energy", result.Energy))

	return []models.Detection{{
		Kind:      models.KindPresence,
		Timestamp: frame.Timestamp,
		Presence:  &result,
	}}
}
