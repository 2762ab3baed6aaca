package models

import (
	"fmt"
	"time"
)

type PostureLabel int

const (
	PostureUnknown PostureLabel = iota
	PostureStanding
	PostureSitting
)

func (l PostureLabel) String() string {
	switch l {
	case PostureStanding:
		return "standing"
	case PostureSitting:
		return "sitting"
	default:
		return "unknown"
	}
}

func (l PostureLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *PostureLabel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "standing":
		*l = PostureStanding
	case "sitting":
		*l = PostureSitting
	case "unknown", "":
		*l = PostureUnknown
	default:
		return fmt.Errorf("unknown posture label %q", string(text))
	}
	return nil
}

type MotionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	MeanDiff  float64   `json:"mean_diff"`
	Threshold float64   `json:"threshold"`
}

// PostureResult carries the label plus both squared-error scores.
type PostureResult struct {
	Label         PostureLabel `json:"label"`
	StandingError float64      `json:"standing_error"`
	SittingError  float64      `json:"sitting_error"`
}

type PresenceResult struct {
	Present bool    `json:"present"`
	Energy  float64 `json:"energy"`
}

type DetectionKind string

const (
	KindMotion   DetectionKind = "motion"
	KindPosture  DetectionKind = "posture"
	KindPresence DetectionKind = "presence"
)

// Detection is one output of the pipeline. Exactly one of Motion, Posture
// or Presence is set, matching Kind.
type Detection struct {
	Kind      DetectionKind   `json:"kind"`
	SensorID  string          `json:"sensor_id"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Motion    *MotionEvent    `json:"motion,omitempty"`
	Posture   *PostureResult  `json:"posture,omitempty"`
	Presence  *PresenceResult `json:"presence,omitempty"`
}
