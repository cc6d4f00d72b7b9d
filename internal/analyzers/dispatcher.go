package analyzers

import (
	"fmt"

	"clinical-review-backend/internal/analysis"
)

// Dispatcher maps analysis type tokens to analyzers. It holds no mutable state.
type Dispatcher struct {
	byType map[analysis.Type]DocumentAnalyzer
}

// NewDispatcher registers the given analyzers by their type. A later analyzer for the same type wins.
func NewDispatcher(list ...DocumentAnalyzer) *Dispatcher {
	byType := make(map[analysis.Type]DocumentAnalyzer, len(list))
	for _, a := range list {
		if a == nil {
			continue
		}
		byType[a.Type()] = a
	}
	return &Dispatcher{byType: byType}
}

// NewDefaultDispatcher wires one Analyzer per supported type over a shared engine.
func NewDefaultDispatcher(engine Extractor) *Dispatcher {
	list := make([]DocumentAnalyzer, 0, len(analysis.Types()))
	for _, t := range analysis.Types() {
		list = append(list, New(t, engine))
	}
	return NewDispatcher(list...)
}

// Dispatch returns the analyzer for token. Tokens outside the supported set fail with
// analysis.ErrInvalidAnalysisType.
func (d *Dispatcher) Dispatch(token string) (DocumentAnalyzer, error) {
	t, err := analysis.ParseType(token)
	if err != nil {
		return nil, err
	}
	a, ok := d.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: no analyzer registered for %q", analysis.ErrInvalidAnalysisType, token)
	}
	return a, nil
}
