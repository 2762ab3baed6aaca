package analytics

import (
	"math"
	"testing"

	"csi-motion-monitor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func profile(label string, mean, baseline float64) *ReferenceProfile {
	return &ReferenceProfile{Label: label, MeanAmplitude: column(mean), BaselineEnergy: baseline, Frames: 1}
}

func TestPostureClassifier(t *testing.T) {
	standing := profile(LabelStanding, 0, 100)
	sitting := profile(LabelSitting, 0, 100)
	pc := NewPostureClassifier(DefaultPostureConfig())

	tests := []struct {
		name     string
		value    float64
		sitting  *ReferenceProfile
		expected models.PostureLabel
	}{
		{"far from standing", math.Sqrt(260), sitting, models.PostureStanding},
		{"close to sitting", math.Sqrt(240), sitting, models.PostureSitting},
		{"far from both", math.Sqrt(240), profile(LabelSitting, 100, 100), models.PostureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := pc.Classify(column(tt.value), standing, tt.sitting)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Label)
		})
	}
}

func TestPostureClassifier_StandingCheckedFirst(t *testing.T) {
	pc := NewPostureClassifier(DefaultPostureConfig())
	// Error 400 exceeds 2.5 x 100 for standing and is under 8 x 100 for
	// sitting; standing wins.
	result, err := pc.Classify(column(20), profile(LabelStanding, 0, 100), profile(LabelSitting, 0, 100))
	require.NoError(t, err)
	assert.Equal(t, models.PostureStanding, result.Label)
	assert.InDelta(t, 400, result.StandingError, 1e-9)
	assert.InDelta(t, 400, result.SittingError, 1e-9)
}

func TestPostureClassifier_SitBaselinePolicy(t *testing.T) {
	standing := profile(LabelStanding, 0, 100)
	sitting := profile(LabelSitting, 0, 10)
	frame := column(math.Sqrt(240))

	compat := NewPostureClassifier(DefaultPostureConfig())
	result, err := compat.Classify(frame, standing, sitting)
	require.NoError(t, err)
	assert.Equal(t, models.PostureSitting, result.Label)

	cfg := DefaultPostureConfig()
	cfg.SitBaseline = SitBaselineSitting
	own := NewPostureClassifier(cfg)
	result, err = own.Classify(frame, standing, sitting)
	require.NoError(t, err)
	assert.Equal(t, models.PostureUnknown, result.Label)
}

func TestPostureClassifier_MissingProfile(t *testing.T) {
	pc := NewPostureClassifier(DefaultPostureConfig())

	result, err := pc.Classify(column(1), nil, profile(LabelSitting, 0, 1))
	assert.ErrorIs(t, err, ErrProfileUnavailable)
	assert.Equal(t, models.PostureUnknown, result.Label)
}

func TestPostureClassifier_ShapeMismatch(t *testing.T) {
	pc := NewPostureClassifier(DefaultPostureConfig())

	_, err := pc.Classify(column(1, 2), profile(LabelStanding, 0, 1), profile(LabelSitting, 0, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestParseSitBaseline(t *testing.T) {
	got, err := ParseSitBaseline("sitting")
	require.NoError(t, err)
	assert.Equal(t, SitBaselineSitting, got)

	_, err = ParseSitBaseline("lying")
	assert.Error(t, err)
}

func TestPostureStage_Observe(t *testing.T) {
	store := NewProfileStore(zap.NewNop())
	stage := NewPostureStage(DefaultPostureConfig(), store, zap.NewNop())

	detections := stage.Observe(frameAt(0, math.Sqrt(240)))
	require.Len(t, detections, 1)
	require.NotNil(t, detections[0].Posture)
	assert.Equal(t, models.KindPosture, detections[0].Kind)
	assert.Equal(t, models.PostureUnknown, detections[0].Posture.Label)

	store.Put(profile(LabelStanding, 0, 100))
	store.Put(profile(LabelSitting, 0, 100))

	detections = stage.Observe(frameAt(0, math.Sqrt(240)))
	require.Len(t, detections, 1)
	assert.Equal(t, models.PostureSitting, detections[0].Posture.Label)
}
