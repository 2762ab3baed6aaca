package analytics

import (
	"math"
	"testing"
	"time"

	"csi-motion-monitor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const presenceStep = 100 * time.Millisecond

func breathing(n int) models.CSIFrame {
	t := float64(n) / 10
	return frameAt(time.Duration(n)*presenceStep, 1000+500*math.Sin(2*math.Pi*0.4*t))
}

func still(n int) models.CSIFrame {
	return frameAt(time.Duration(n)*presenceStep, 1000)
}

func TestPresenceDetector_BandEnergy(t *testing.T) {
	pd := NewPresenceDetector(DefaultPresenceConfig(), zap.NewNop())

	sine := make([]*mat.Dense, 50)
	flat := make([]*mat.Dense, 50)
	for n := range sine {
		sine[n] = breathing(n).Amplitude
		flat[n] = still(n).Amplitude
	}

	// A 500-amplitude tone exactly on bin 2 of a 50-point transform.
	assert.InDelta(t, 25000, pd.BandEnergy(sine), 1e-6)
	assert.InDelta(t, 0, pd.BandEnergy(flat), 1e-6)
}

func TestPresenceDetector_WaitsForFullWindow(t *testing.T) {
	pd := NewPresenceDetector(DefaultPresenceConfig(), zap.NewNop())

	for n := 0; n < 49; n++ {
		_, ok := pd.Evaluate(breathing(n))
		require.False(t, ok, "frame %d", n)
	}
	result, ok := pd.Evaluate(breathing(49))
	require.True(t, ok)
	assert.True(t, result.Present)
}

func TestPresenceDetector_EmitsOnlyChanges(t *testing.T) {
	pd := NewPresenceDetector(DefaultPresenceConfig(), zap.NewNop())

	var emitted []models.Detection
	n := 0
	for ; n < 80; n++ {
		emitted = append(emitted, pd.Observe(breathing(n))...)
	}
	require.Len(t, emitted, 1)
	assert.Equal(t, models.KindPresence, emitted[0].Kind)
	assert.True(t, emitted[0].Presence.Present)

	for ; n < 160; n++ {
		emitted = append(emitted, pd.Observe(still(n))...)
	}
	require.GreaterOrEqual(t, len(emitted), 2)
	for i := 1; i < len(emitted); i++ {
		assert.NotEqual(t, emitted[i-1].Presence.Present, emitted[i].Presence.Present)
	}
	assert.False(t, emitted[len(emitted)-1].Presence.Present)
}
