package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"clinical-review-backend/internal/analysis"
)

var (
	ErrNotFound      = errors.New("result not found")
	ErrTypeMismatch  = errors.New("record analysis type does not match store")
	ErrTenantMissing = errors.New("tenant id is required")
)

// Store persists records of one analysis type, partitioned by tenant.
type Store interface {
	Type() analysis.Type
	// Save stores rec for tenantID and returns it with its id and tenant set.
	Save(ctx context.Context, tenantID string, rec analysis.Record) (analysis.Record, error)
	GetByID(ctx context.Context, analysisID string) (analysis.Record, error)
	// ListByTenant returns the tenant's records newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]analysis.Record, error)
	// DeleteByID reports whether a record was removed.
	DeleteByID(ctx context.Context, analysisID string) (bool, error)
}

func prepareSave(t analysis.Type, tenantID string, rec analysis.Record) (analysis.Record, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return analysis.Record{}, ErrTenantMissing
	}
	if rec.AnalysisType != t {
		return analysis.Record{}, fmt.Errorf("%w: store %s, record %s", ErrTypeMismatch, t, rec.AnalysisType)
	}
	if rec.Results == nil {
		empty, err := analysis.EmptyResult(t)
		if err != nil {
			return analysis.Record{}, err
		}
		rec.Results = empty
	}
	if rec.Results.AnalysisType() != t {
		return analysis.Record{}, fmt.Errorf("%w: results shape %s", ErrTypeMismatch, rec.Results.AnalysisType())
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = analysis.Now()
	}
	rec.TenantID = tenantID
	return rec, nil
}

// sortNewestFirst orders by creation time descending, breaking ties by id for a stable listing.
func sortNewestFirst(list []analysis.Record) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

func cloneRecord(rec analysis.Record) (analysis.Record, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return analysis.Record{}, err
	}
	var out analysis.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}
