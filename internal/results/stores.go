package results

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"clinical-review-backend/internal/analysis"
)

// Stores groups one Store per analysis type.
type Stores struct {
	byType map[analysis.Type]Store
}

// NewStores indexes the given stores by their type.
func NewStores(list ...Store) *Stores {
	byType := make(map[analysis.Type]Store, len(list))
	for _, s := range list {
		byType[s.Type()] = s
	}
	return &Stores{byType: byType}
}

// NewMemoryStores returns in-memory stores for every analysis type.
func NewMemoryStores() *Stores {
	list := make([]Store, 0, len(analysis.Types()))
	for _, t := range analysis.Types() {
		list = append(list, NewMemoryStore(t))
	}
	return NewStores(list...)
}

// NewPGStores returns Postgres stores for every analysis type.
func NewPGStores(db *sql.DB) (*Stores, error) {
	list := make([]Store, 0, len(analysis.Types()))
	for _, t := range analysis.Types() {
		s, err := NewPGStore(db, t)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return NewStores(list...), nil
}

// For returns the store for t.
func (s *Stores) For(t analysis.Type) (Store, error) {
	store, ok := s.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: no result store for %q", analysis.ErrInvalidAnalysisType, string(t))
	}
	return store, nil
}

// ListAllForTenant fetches every type's records for tenantID and merges them newest first.
// Any failed sub-fetch fails the whole call.
func (s *Stores) ListAllForTenant(ctx context.Context, tenantID string) ([]analysis.Record, error) {
	types := analysis.Types()
	lists := make([][]analysis.Record, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		store, err := s.For(t)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			list, err := store.ListByTenant(gctx, tenantID)
			if err != nil {
				return fmt.Errorf("list %s: %w", t, err)
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]analysis.Record, 0)
	for _, list := range lists {
		out = append(out, list...)
	}
	sortNewestFirst(out)
	return out, nil
}
