package analysis

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"
)

func TestEmptyResultUnknownType(t *testing.T) {
	_, err := EmptyResult(Type("xyz"))
	if !errors.Is(err, ErrUnknownAnalysisType) {
		t.Fatalf("expected unknown analysis type, got %v", err)
	}
	if !errors.Is(err, ErrInvalidAnalysisType) {
		t.Fatalf("expected unknown type to match invalid type, got %v", err)
	}
}

func TestEmptyResultHasNoNullSequences(t *testing.T) {
	for _, typ := range Types() {
		res, err := EmptyResult(typ)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if res.AnalysisType() != typ {
			t.Fatalf("expected %s, got %s", typ, res.AnalysisType())
		}
		raw, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("%s marshal: %v", typ, err)
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			t.Fatalf("%s unmarshal: %v", typ, err)
		}
		if path := findNull(tree, string(typ)); path != "" {
			t.Fatalf("null value at %s", path)
		}
	}
}

func TestDecodeResultsMatchesEmptyShape(t *testing.T) {
	samples := map[Type]string{
		TypeQAReview: `{
			"patientInfo": {"name": "Jane Doe", "medicalRecordNumber": "MRN-1"},
			"complianceReview": {"overallStatus": "partial", "score": 82,
				"findings": [{"area": "consent", "requirement": "signed", "status": "missing", "evidence": "", "severity": "high"}]},
			"clinicalConsistency": {"inconsistencies": [{"description": "wound stage differs"}]},
			"riskFlags": null,
			"summary": {"overallScore": 82, "totalFindings": 1}
		}`,
		TypeCodingReview: `{
			"primaryDiagnosis": {"reportedCode": "I50.9", "recommendedCode": "I50.32",
				"alternatives": [{"code": "I11.0", "description": "Hypertensive heart disease", "rationale": "HTN documented"}]},
			"secondaryDiagnoses": {"codes": [{"code": "E11.9", "status": "correct"}]},
			"summary": {"totalCodesReviewed": 2, "accuracyRate": 0.5}
		}`,
		TypeFinancialOptimization: `{
			"revenueImpact": {"currentEstimatedRevenue": 2100.5, "drivers": [{"factor": "comorbidity", "estimatedImpact": 120}]},
			"paymentSources": {"primaryPayer": "Medicare"},
			"recommendations": [{"priority": "high", "action": "verify authorization"}]
		}`,
	}
	for typ, raw := range samples {
		filled, err := DecodeResults(typ, []byte(raw))
		if err != nil {
			t.Fatalf("%s decode: %v", typ, err)
		}
		empty, _ := EmptyResult(typ)
		got := shapeOf(t, filled)
		want := shapeOf(t, empty)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s shape mismatch\nfilled: %v\nempty:  %v", typ, got, want)
		}
		if path := findNull(treeOf(t, filled), string(typ)); path != "" {
			t.Fatalf("null value at %s", path)
		}
	}
}

func TestDecodeResultsNullAndMalformed(t *testing.T) {
	res, err := DecodeResults(TypeCodingReview, []byte("null"))
	if err != nil {
		t.Fatalf("null decode: %v", err)
	}
	empty := EmptyCodingReview()
	if !reflect.DeepEqual(res, empty) {
		t.Fatalf("expected empty coding review for null input")
	}

	res, err = DecodeResults(TypeCodingReview, []byte(`{"summary": "nope"}`))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !reflect.DeepEqual(res, empty) {
		t.Fatalf("expected canonical empty value on decode error")
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	res, err := DecodeResults(TypeFinancialOptimization, []byte(`{"summary": {"totalOpportunities": 3, "riskLevel": "low"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	completed := Now()
	rec := Record{
		ID:             "job-1",
		FileName:       "note.txt",
		AnalysisType:   TypeFinancialOptimization,
		Status:         StatusCompleted,
		Priority:       "high",
		Model:          "gpt-4o-mini",
		Results:        res,
		Confidence:     0.8,
		ProcessingTime: "1.2s",
		CreatedAt:      completed,
		CompletedAt:    &completed,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Record
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("round trip mismatch\ngot:  %+v\nwant: %+v", got, rec)
	}
}

func TestRecordUnmarshalRejectsUnknownType(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"id":"x","analysisType":"xyz","results":{}}`), &rec)
	if !errors.Is(err, ErrUnknownAnalysisType) {
		t.Fatalf("expected unknown analysis type, got %v", err)
	}
}

func TestFallbackRecord(t *testing.T) {
	job := NewJob("job-2", "empty.pdf", TypeQAReview, "", "", "", "gpt-4o-mini")
	rec, err := FallbackRecord(job, StatusError, "boom\nstack")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if rec.Confidence != SentinelConfidence {
		t.Fatalf("expected sentinel confidence, got %v", rec.Confidence)
	}
	if rec.Status != StatusError || rec.Diagnostic != "boom stack" {
		t.Fatalf("unexpected fallback record: %+v", rec)
	}
	if rec.Priority != DefaultPriority {
		t.Fatalf("expected default priority, got %q", rec.Priority)
	}
	if !reflect.DeepEqual(rec.Results, EmptyQAReview()) {
		t.Fatalf("expected empty qa results")
	}
}

// shapeOf reduces a value to its sorted key paths. Array elements contribute the shape of
// their first element so an empty sequence and a populated one compare by container only.
func shapeOf(t *testing.T, v any) []string {
	t.Helper()
	var paths []string
	collectPaths(treeOf(t, v), "", &paths, false)
	sort.Strings(paths)
	return paths
}

func treeOf(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return tree
}

func collectPaths(node any, prefix string, out *[]string, inArray bool) {
	switch v := node.(type) {
	case map[string]any:
		if inArray {
			return
		}
		for k, child := range v {
			p := prefix + "." + k
			*out = append(*out, p)
			collectPaths(child, p, out, false)
		}
	case []any:
		for _, child := range v {
			collectPaths(child, prefix+"[]", out, true)
		}
	}
}

func findNull(node any, path string) string {
	switch v := node.(type) {
	case nil:
		return path
	case map[string]any:
		for k, child := range v {
			if p := findNull(child, path+"."+k); p != "" {
				return p
			}
		}
	case []any:
		for _, child := range v {
			if p := findNull(child, path+"[]"); p != "" {
				return p
			}
		}
	}
	return ""
}

func TestFieldNames(t *testing.T) {
	names, err := FieldNames(TypeCodingReview)
	if err != nil {
		t.Fatalf("field names: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "primaryDiagnosis" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected primaryDiagnosis in %v", names)
	}
	if _, err := FieldNames(Type("xyz")); !errors.Is(err, ErrUnknownAnalysisType) {
		t.Fatalf("expected unknown analysis type, got %v", err)
	}
}
