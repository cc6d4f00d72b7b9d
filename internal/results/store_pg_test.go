package results

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"clinical-review-backend/internal/analysis"
)

type captureArg struct {
	value *driver.Value
}

func (c captureArg) Match(v driver.Value) bool {
	*c.value = v
	return true
}

var columns = []string{
	"id", "tenant_id", "file_name", "status", "priority", "patient_ref", "notes", "model",
	"results", "confidence", "processing_time", "diagnostic", "source_key", "created_at", "completed_at",
}

func newPGStore(t *testing.T, typ analysis.Type) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewPGStore(db, typ)
	if err != nil {
		t.Fatalf("NewPGStore: %v", err)
	}
	return store, mock
}

func TestPGStoreSaveThenGetRoundTrip(t *testing.T) {
	store, mock := newPGStore(t, analysis.TypeQAReview)
	rec := sampleRecord(t, analysis.TypeQAReview, "qa-1", analysis.Now())
	rec.Diagnostic = ""
	rec.SourceKey = "abc/qa-1_note.txt"

	var payload driver.Value
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO qa_review_results")).
		WithArgs(
			"qa-1",
			"tenant-1",
			rec.FileName,
			"completed",
			rec.Priority,
			rec.PatientRef,
			rec.Notes,
			rec.Model,
			captureArg{value: &payload},
			rec.Confidence,
			rec.ProcessingTime,
			rec.Diagnostic,
			rec.SourceKey,
			rec.CreatedAt,
			*rec.CompletedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := store.Save(context.Background(), "tenant-1", rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	rows := sqlmock.NewRows(columns).AddRow(
		saved.ID, saved.TenantID, saved.FileName, string(saved.Status), saved.Priority, saved.PatientRef, saved.Notes, saved.Model,
		payload, saved.Confidence, saved.ProcessingTime, saved.Diagnostic, saved.SourceKey, saved.CreatedAt, *saved.CompletedAt,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM qa_review_results WHERE id = $1")).
		WithArgs("qa-1").
		WillReturnRows(rows)

	got, err := store.GetByID(context.Background(), "qa-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Fatalf("round trip mismatch\ngot:  %+v\nwant: %+v", got, saved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetNotFound(t *testing.T) {
	store, mock := newPGStore(t, analysis.TypeCodingReview)
	mock.ExpectQuery(regexp.QuoteMeta("FROM coding_review_results WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreListByTenantDecodesNullSequences(t *testing.T) {
	store, mock := newPGStore(t, analysis.TypeFinancialOptimization)
	created := analysis.Now()
	rows := sqlmock.NewRows(columns).
		AddRow("f2", "tenant-1", "b.txt", "failed", "high", "", "", "gpt-4o-mini",
			[]byte(`{"recommendations":null}`), 0.1, "15ms", "extraction backend: down", "", created, created).
		AddRow("f1", "tenant-1", "a.txt", "completed", "medium", "", "", "gpt-4o-mini",
			[]byte(`{}`), 0.7, "1.0s", "", "", created.Add(-1), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM financial_optimization_results WHERE tenant_id = $1 ORDER BY created_at DESC")).
		WithArgs("tenant-1").
		WillReturnRows(rows)

	list, err := store.ListByTenant(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(list) != 2 || list[0].ID != "f2" || list[1].ID != "f1" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Results.(*analysis.FinancialOptimizationResults).Recommendations == nil {
		t.Fatalf("expected empty recommendations, got nil")
	}
	if list[1].CompletedAt != nil {
		t.Fatalf("expected nil completedAt for NULL column")
	}
	if list[0].AnalysisType != analysis.TypeFinancialOptimization || list[0].Status != analysis.StatusFailed {
		t.Fatalf("unexpected type/status %s/%s", list[0].AnalysisType, list[0].Status)
	}
}

func TestPGStoreDelete(t *testing.T) {
	store, mock := newPGStore(t, analysis.TypeQAReview)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM qa_review_results WHERE id = $1")).
		WithArgs("qa-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM qa_review_results WHERE id = $1")).
		WithArgs("qa-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.DeleteByID(context.Background(), "qa-1")
	if err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.DeleteByID(context.Background(), "qa-1")
	if err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreSurfacesErrors(t *testing.T) {
	store, mock := newPGStore(t, analysis.TypeCodingReview)
	boom := errors.New("connection refused")
	mock.ExpectQuery("FROM coding_review_results").WillReturnError(boom)

	if _, err := store.ListByTenant(context.Background(), "tenant-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestNewPGStoreUnknownType(t *testing.T) {
	if _, err := NewPGStore(nil, analysis.Type("xyz")); !errors.Is(err, analysis.ErrUnknownAnalysisType) {
		t.Fatalf("expected unknown analysis type, got %v", err)
	}
}
