package analytics

import (
	"fmt"
	"strings"

	"csi-motion-monitor/models"
)

// Stage is one comparison strategy run by the engine on every frame.
// Implementations are driven from a single goroutine.
type Stage interface {
	Name() string
	Observe(frame models.CSIFrame) []models.Detection
}

// ParseStageNames splits a comma separated list such as "motion,posture".
func ParseStageNames(list string) ([]models.DetectionKind, error) {
	var kinds []models.DetectionKind
	seen := make(map[models.DetectionKind]bool)
	for _, part := range strings.Split(list, ",") {
		name := models.DetectionKind(strings.TrimSpace(strings.ToLower(part)))
		if name == "" {
			continue
		}
		switch name {
		case models.KindMotion, models.KindPosture, models.KindPresence:
		default:
			return nil, fmt.Errorf("unknown detector %q", name)
		}
		if !seen[name] {
			seen[name] = true
			kinds = append(kinds, name)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no detectors configured")
	}
	return kinds, nil
}
