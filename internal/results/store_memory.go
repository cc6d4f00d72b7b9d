package results

import (
	"context"
	"sync"

	"clinical-review-backend/internal/analysis"
)

// MemoryStore keeps records in memory and is safe for concurrent use.
type MemoryStore struct {
	analysisType analysis.Type
	mu           sync.RWMutex
	byID         map[string]analysis.Record
}

// NewMemoryStore constructs a MemoryStore for t.
func NewMemoryStore(t analysis.Type) *MemoryStore {
	return &MemoryStore{analysisType: t, byID: make(map[string]analysis.Record)}
}

func (s *MemoryStore) Type() analysis.Type { return s.analysisType }

// Save stores a deep copy of the record.
func (s *MemoryStore) Save(ctx context.Context, tenantID string, rec analysis.Record) (analysis.Record, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Record{}, err
	}
	rec, err := prepareSave(s.analysisType, tenantID, rec)
	if err != nil {
		return analysis.Record{}, err
	}
	stored, err := cloneRecord(rec)
	if err != nil {
		return analysis.Record{}, err
	}
	s.mu.Lock()
	s.byID[rec.ID] = stored
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, analysisID string) (analysis.Record, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Record{}, err
	}
	s.mu.RLock()
	rec, ok := s.byID[analysisID]
	s.mu.RUnlock()
	if !ok {
		return analysis.Record{}, ErrNotFound
	}
	return cloneRecord(rec)
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]analysis.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]analysis.Record, 0)
	for _, rec := range s.byID {
		if rec.TenantID != tenantID {
			continue
		}
		cp, err := cloneRecord(rec)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		out = append(out, cp)
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, analysisID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[analysisID]; !ok {
		return false, nil
	}
	delete(s.byID, analysisID)
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
