package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clinical-review-backend/internal/analysis"
)

var tableByType = map[analysis.Type]string{
	analysis.TypeQAReview:              "qa_review_results",
	analysis.TypeCodingReview:          "coding_review_results",
	analysis.TypeFinancialOptimization: "financial_optimization_results",
}

// PGStore implements Store over the per-type Postgres results table.
type PGStore struct {
	DB           *sql.DB
	analysisType analysis.Type
	table        string
}

// NewPGStore returns a store for t backed by db.
func NewPGStore(db *sql.DB, t analysis.Type) (*PGStore, error) {
	table, ok := tableByType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", analysis.ErrUnknownAnalysisType, string(t))
	}
	return &PGStore{DB: db, analysisType: t, table: table}, nil
}

func (s *PGStore) Type() analysis.Type { return s.analysisType }

// Save upserts the record by id.
func (s *PGStore) Save(ctx context.Context, tenantID string, rec analysis.Record) (analysis.Record, error) {
	rec, err := prepareSave(s.analysisType, tenantID, rec)
	if err != nil {
		return analysis.Record{}, err
	}
	payload, err := json.Marshal(rec.Results)
	if err != nil {
		return analysis.Record{}, fmt.Errorf("marshal results: %w", err)
	}
	query := `
INSERT INTO ` + s.table + ` (
	id, tenant_id, file_name, status, priority, patient_ref, notes, model,
	results, confidence, processing_time, diagnostic, source_key, created_at, completed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	file_name = EXCLUDED.file_name,
	status = EXCLUDED.status,
	priority = EXCLUDED.priority,
	patient_ref = EXCLUDED.patient_ref,
	notes = EXCLUDED.notes,
	model = EXCLUDED.model,
	results = EXCLUDED.results,
	confidence = EXCLUDED.confidence,
	processing_time = EXCLUDED.processing_time,
	diagnostic = EXCLUDED.diagnostic,
	source_key = EXCLUDED.source_key,
	created_at = EXCLUDED.created_at,
	completed_at = EXCLUDED.completed_at`
	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = *rec.CompletedAt
	}
	_, err = s.DB.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.FileName,
		string(rec.Status),
		rec.Priority,
		rec.PatientRef,
		rec.Notes,
		rec.Model,
		payload,
		rec.Confidence,
		rec.ProcessingTime,
		rec.Diagnostic,
		rec.SourceKey,
		rec.CreatedAt,
		completedAt,
	)
	if err != nil {
		return analysis.Record{}, fmt.Errorf("save %s result: %w", s.analysisType, err)
	}
	return rec, nil
}

const selectColumns = `id, tenant_id, file_name, status, priority, patient_ref, notes, model,
       results, confidence, processing_time, diagnostic, source_key, created_at, completed_at`

func (s *PGStore) GetByID(ctx context.Context, analysisID string) (analysis.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + s.table + ` WHERE id = $1 LIMIT 1`
	rec, err := s.scanRecord(s.DB.QueryRowContext(ctx, query, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) ListByTenant(ctx context.Context, tenantID string) ([]analysis.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + s.table + ` WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list %s results: %w", s.analysisType, err)
	}
	defer rows.Close()

	out := make([]analysis.Record, 0)
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s results: %w", s.analysisType, err)
	}
	return out, nil
}

func (s *PGStore) DeleteByID(ctx context.Context, analysisID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, analysisID)
	if err != nil {
		return false, fmt.Errorf("delete %s result: %w", s.analysisType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PGStore) scanRecord(row rowScanner) (analysis.Record, error) {
	var rec analysis.Record
	var status string
	var payload []byte
	var completedAt sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.FileName,
		&status,
		&rec.Priority,
		&rec.PatientRef,
		&rec.Notes,
		&rec.Model,
		&payload,
		&rec.Confidence,
		&rec.ProcessingTime,
		&rec.Diagnostic,
		&rec.SourceKey,
		&rec.CreatedAt,
		&completedAt,
	); err != nil {
		return analysis.Record{}, err
	}
	rec.AnalysisType = s.analysisType
	rec.Status = analysis.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	res, err := analysis.DecodeResults(s.analysisType, payload)
	if err != nil {
		return analysis.Record{}, fmt.Errorf("decode %s result %s: %w", s.analysisType, rec.ID, err)
	}
	rec.Results = res
	return rec, nil
}

var _ Store = (*PGStore)(nil)
