package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"groundflow/internal/models"
)

// QCRepo persists QC reports keyed to the snapshot they validated.
// Reports are insert-only.
type QCRepo struct {
	db *DB
}

func NewQCRepo(db *DB) *QCRepo {
	return &QCRepo{db: db}
}

func (r *QCRepo) InsertReport(ctx context.Context, snapshotID string, report models.QCReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal qc report: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO qc_reports (snapshot_id, verdict, report)
VALUES ($1, $2, $3)
ON CONFLICT (snapshot_id) DO NOTHING`,
		snapshotID, report.Verdict, payload)
	if err != nil {
		return fmt.Errorf("insert qc report: %w", err)
	}
	return nil
}

func (r *QCRepo) GetReport(ctx context.Context, snapshotID string) (models.QCReport, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT report FROM qc_reports WHERE snapshot_id=$1`, snapshotID).Scan(&payload)
	if err != nil {
		return models.QCReport{}, fmt.Errorf("get qc report: %w", err)
	}
	var report models.QCReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return models.QCReport{}, fmt.Errorf("decode qc report: %w", err)
	}
	return report, nil
}
