package analytics

import (
	"context"

	"csi-motion-monitor/models"

	"go.uber.org/zap"
)

// LogSink writes posture changes to the log. Motion and presence are
// already logged by their stages.
type LogSink struct {
	logger *zap.Logger
	last   models.PostureLabel
	seen   bool
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, d models.Detection) error {
	if d.Kind != models.KindPosture || d.Posture == nil {
		return nil
	}
	if s.seen && d.Posture.Label == s.last {
		return nil
	}
	s.seen = true
	s.last = d.Posture.Label
	s.logger.Info("Posture changed",
		zap.String("label", d.Posture.Label.String()),
		zap.Float64("standing_error", d.Posture.StandingError),
		zap.Float64("sitting_error", d.Posture.SittingError),
		zap.Time("frame_time", d.Timestamp))
	return nil
}
