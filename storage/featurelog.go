package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"csi-motion-monitor/models"

	_ "modernc.org/sqlite"
)

// FeatureRow is one classified frame as stored in the feature log.
type FeatureRow struct {
	Timestamp     time.Time
	Label         models.PostureLabel
	StandingError float64
	SittingError  float64
	Amplitude     []float64
}

// FeatureLog is an append-only sqlite table of per-subcarrier amplitudes
// for offline analysis.
type FeatureLog struct {
	db *sql.DB
}

func OpenFeatureLog(path string) (*FeatureLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		PRAGMA journal_mode=WAL;
		CREATE TABLE IF NOT EXISTS csi_features (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_time_ns     BIGINT NOT NULL,
			label             TEXT NOT NULL,
			standing_error    DOUBLE,
			sitting_error     DOUBLE,
			amplitude         TEXT NOT NULL,
			recorded_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feature log schema: %w", err)
	}

	return &FeatureLog{db: db}, nil
}

func (fl *FeatureLog) Close() error {
	return fl.db.Close()
}

// RecordFrame implements analytics.FrameRecorder. Amplitudes of the first
// antenna are stored.
func (fl *FeatureLog) RecordFrame(ctx context.Context, frame models.CSIFrame, posture models.PostureResult) error {
	amplitude, err := json.Marshal(frame.Column(0))
	if err != nil {
		return err
	}

	_, err = fl.db.ExecContext(ctx, `
		INSERT INTO csi_features (frame_time_ns, label, standing_error, sitting_error, amplitude)
		VALUES (?, ?, ?, ?, ?)`,
		frame.Timestamp.UnixNano(),
		posture.Label.String(),
		posture.StandingError,
		posture.SittingError,
		string(amplitude),
	)
	return err
}

// Recent returns up to n rows, newest first.
func (fl *FeatureLog) Recent(ctx context.Context, n int) ([]FeatureRow, error) {
	rows, err := fl.db.QueryContext(ctx, `
		SELECT frame_time_ns, label, standing_error, sitting_error, amplitude
		FROM csi_features
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeatureRow
	for rows.Next() {
		var (
			ns        int64
			label     string
			amplitude string
			row       FeatureRow
		)
		if err := rows.Scan(&ns, &label, &row.StandingError, &row.SittingError, &amplitude); err != nil {
			return nil, err
		}
		if err := row.Label.UnmarshalText([]byte(label)); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(amplitude), &row.Amplitude); err != nil {
			return nil, err
		}
		row.Timestamp = time.Unix(0, ns)
		out = append(out, row)
	}
	return out, rows.Err()
}
