package analytics

import (
	"errors"
	"fmt"

	"csi-motion-monitor/models"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SitBaseline selects which profile's baseline energy scales the sitting
// check.
type SitBaseline string

const (
	// SitBaselineStanding compares the sitting error against the standing
	// profile's baseline energy. This is the historical behaviour.
	SitBaselineStanding SitBaseline = "standing"
	// SitBaselineSitting compares against the sitting profile's own baseline.
	SitBaselineSitting SitBaseline = "sitting"
)

func ParseSitBaseline(s string) (SitBaseline, error) {
	switch SitBaseline(s) {
	case SitBaselineStanding, SitBaselineSitting:
		return SitBaseline(s), nil
	}
	return "", fmt.Errorf("unknown sitting baseline %q", s)
}

type PostureConfig struct {
	StandThreshRatio float64
	SitThreshRatio   float64
	SitBaseline      SitBaseline
	ClipCeiling      float64
}

func DefaultPostureConfig() PostureConfig {
	return PostureConfig{
		StandThreshRatio: 2.5,
		SitThreshRatio:   8.0,
		SitBaseline:      SitBaselineStanding,
		ClipCeiling:      3000,
	}
}

// PostureClassifier labels a frame by its squared error against the
// standing and sitting reference profiles. Standing is checked first.
type PostureClassifier struct {
	cfg PostureConfig
}

func NewPostureClassifier(cfg PostureConfig) *PostureClassifier {
	return &PostureClassifier{cfg: cfg}
}

func (pc *PostureClassifier) Classify(amplitude mat.Matrix, standing, sitting *ReferenceProfile) (models.PostureResult, error) {
	if standing == nil || sitting == nil {
		return models.PostureResult{Label: models.PostureUnknown}, ErrProfileUnavailable
	}

	standingErr, err := standing.ErrorAgainst(amplitude)
	if err != nil {
		return models.PostureResult{Label: models.PostureUnknown}, err
	}
	sittingErr, err := sitting.ErrorAgainst(amplitude)
	if err != nil {
		return models.PostureResult{Label: models.PostureUnknown}, err
	}

	result := models.PostureResult{
		Label:         models.PostureUnknown,
		StandingError: standingErr,
		SittingError:  sittingErr,
	}

	sitBaseline := standing.BaselineEnergy
	if pc.cfg.SitBaseline == SitBaselineSitting {
		sitBaseline = sitting.BaselineEnergy
	}

	switch {
	case standingErr > pc.cfg.StandThreshRatio*standing.BaselineEnergy:
		result.Label = models.PostureStanding
	case sittingErr < pc.cfg.SitThreshRatio*sitBaseline:
		result.Label = models.PostureSitting
	}
	return result, nil
}

// PostureStage runs the classifier against the profiles held in a store.
// It never builds profiles itself; a missing profile yields Unknown.
type PostureStage struct {
	classifier  *PostureClassifier
	store       *ProfileStore
	clipCeiling float64
	warned      bool
	logger      *zap.Logger
}

func NewPostureStage(cfg PostureConfig, store *ProfileStore, logger *zap.Logger) *PostureStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostureStage{
		classifier:  NewPostureClassifier(cfg),
		store:       store,
		clipCeiling: cfg.ClipCeiling,
		logger:      logger,
	}
}

func (ps *PostureStage) Name() string { return string(models.KindPosture) }

func (ps *PostureStage) Observe(frame models.CSIFrame) []models.Detection {
	standing, _ := ps.store.Lookup(LabelStanding)
	sitting, _ := ps.store.Lookup(LabelSitting)

	result, err := ps.classifier.Classify(Clip(frame.Amplitude, ps.clipCeiling), standing, sitting)
	switch {
	case errors.Is(err, ErrProfileUnavailable):
		if !ps.warned {
			ps.warned = true
			ps.logger.Warn("Posture profiles not loaded, classifying as unknown",
				zap.Bool("standing", standing != nil),
				zap.Bool("sitting", sitting != nil))
		}
	case err != nil:
		framesDroppedTotal.WithLabelValues("profile_shape").Inc()
		ps.logger.Debug("Posture classification skipped", zap.Error(err))
	}

	postureLabelsTotal.WithLabelValues(result.Label.String()).Inc()
	return []models.Detection{{
		Kind:      models.KindPosture,
		Timestamp: frame.Timestamp,
		Posture:   &result,
	}}
}
