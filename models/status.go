package models

import "time"

// Status is the latest known state of one sensor, kept in the cache.
type Status struct {
	SensorID   string          `json:"sensor_id"`
	SessionID  string          `json:"session_id"`
	LastMotion *MotionEvent    `json:"last_motion,omitempty"`
	Posture    *PostureResult  `json:"posture,omitempty"`
	Presence   *PresenceResult `json:"presence,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Apply folds a detection into the status.
func (s *Status) Apply(d Detection) {
	s.SensorID = d.SensorID
	s.SessionID = d.SessionID
	switch d.Kind {
	case KindMotion:
		s.LastMotion = d.Motion
	case KindPosture:
		s.Posture = d.Posture
	case KindPresence:
		s.Presence = d.Presence
	}
	if d.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = d.Timestamp
	}
}
