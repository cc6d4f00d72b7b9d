package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Results is the type-specific payload of a record. The variants are QAReviewResults,
// CodingReviewResults and FinancialOptimizationResults.
type Results interface {
	AnalysisType() Type
	normalize()
}

// PatientInfo is shared by every analysis variant.
type PatientInfo struct {
	Name                string `json:"name"`
	MedicalRecordNumber string `json:"medicalRecordNumber"`
	DateOfBirth         string `json:"dateOfBirth"`
	Gender              string `json:"gender"`
	PrimaryPayer        string `json:"primaryPayer"`
	EpisodeStart        string `json:"episodeStart"`
	EpisodeEnd          string `json:"episodeEnd"`
}

// Recommendation is a prioritized follow-up action.
type Recommendation struct {
	Priority  string `json:"priority"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// EmptyResult returns the canonical fully-defaulted results value for t.
func EmptyResult(t Type) (Results, error) {
	switch t {
	case TypeQAReview:
		return EmptyQAReview(), nil
	case TypeCodingReview:
		return EmptyCodingReview(), nil
	case TypeFinancialOptimization:
		return EmptyFinancialOptimization(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalysisType, string(t))
	}
}

// DecodeResults parses raw JSON into the shape for t. Fields missing from raw keep the
// canonical empty value and null or missing sequences come back as empty slices.
func DecodeResults(t Type, raw []byte) (Results, error) {
	res, err := EmptyResult(t)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return res, nil
	}
	if err := json.Unmarshal(trimmed, res); err != nil {
		empty, _ := EmptyResult(t)
		return empty, fmt.Errorf("decode %s results: %w", t, err)
	}
	res.normalize()
	return res, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// FieldNames lists the top-level JSON keys of the results shape for t, sorted.
func FieldNames(t Type) ([]string, error) {
	res, err := EmptyResult(t)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}
