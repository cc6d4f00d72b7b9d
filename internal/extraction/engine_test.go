package extraction

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/llm"
)

func staticClient(out string) llm.Client {
	return llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return out, nil
	})
}

func TestExtractSuccessEnvelope(t *testing.T) {
	engine := NewEngine(staticClient(`{"confidence": 0.92, "results": {"primaryDiagnosis": {"reportedCode": "I50.9"}}}`), Options{})
	res, conf, err := engine.Extract(context.Background(), analysis.TypeCodingReview, "CHF exacerbation", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", conf)
	}
	coding, ok := res.(*analysis.CodingReviewResults)
	if !ok {
		t.Fatalf("expected coding results, got %T", res)
	}
	if coding.PrimaryDiagnosis.ReportedCode != "I50.9" {
		t.Fatalf("unexpected reported code %q", coding.PrimaryDiagnosis.ReportedCode)
	}
	if coding.Corrections == nil || coding.PrimaryDiagnosis.Alternatives == nil {
		t.Fatalf("omitted sequences should be empty, not nil")
	}
}

func TestExtractBareObjectDefaultsConfidence(t *testing.T) {
	out := "Here you go:\n```json\n{\"summary\": {\"riskLevel\": \"low\"}}\n```"
	engine := NewEngine(staticClient(out), Options{})
	res, conf, err := engine.Extract(context.Background(), analysis.TypeFinancialOptimization, "visit note", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf != DefaultConfidence {
		t.Fatalf("expected default confidence, got %v", conf)
	}
	if res.(*analysis.FinancialOptimizationResults).Summary.RiskLevel != "low" {
		t.Fatalf("expected parsed risk level")
	}
}

func TestExtractNonNumericConfidenceUsesDefault(t *testing.T) {
	outputs := []string{
		`{"confidence": null, "results": {"primaryDiagnosis": {"reportedCode": "I50.9"}}}`,
		`{"confidence": "high", "results": {"primaryDiagnosis": {"reportedCode": "I50.9"}}}`,
		`{"confidence": null, "error": null, "primaryDiagnosis": {"reportedCode": "I50.9"}}`,
	}
	for _, out := range outputs {
		engine := NewEngine(staticClient(out), Options{})
		res, conf, err := engine.Extract(context.Background(), analysis.TypeCodingReview, "CHF", Context{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", out, err)
		}
		if conf != DefaultConfidence {
			t.Fatalf("%s: expected default confidence, got %v", out, conf)
		}
		if res.(*analysis.CodingReviewResults).PrimaryDiagnosis.ReportedCode != "I50.9" {
			t.Fatalf("%s: expected parsed reported code", out)
		}
	}
}

func TestExtractClampsConfidence(t *testing.T) {
	engine := NewEngine(staticClient(`{"confidence": 7, "results": {}}`), Options{})
	_, conf, err := engine.Extract(context.Background(), analysis.TypeQAReview, "note", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf != 1 {
		t.Fatalf("expected clamped confidence 1, got %v", conf)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		text   string
		kind   Kind
	}{
		{name: "empty document", client: staticClient(`{}`), text: "  \n", kind: KindEmptyDocument},
		{name: "backend error", client: llm.Disabled{}, text: "note", kind: KindBackend},
		{name: "not json", client: staticClient("I cannot help with that."), text: "note", kind: KindMalformedOutput},
		{name: "results not object", client: staticClient(`{"results": [1,2]}`), text: "note", kind: KindMalformedOutput},
		{name: "wrong field type", client: staticClient(`{"results": {"summary": "x"}}`), text: "note", kind: KindMalformedOutput},
		{name: "low confidence", client: staticClient(`{"confidence": 0.05, "results": {}}`), text: "note", kind: KindLowConfidence},
		{name: "empty object", client: staticClient(`{}`), text: "note", kind: KindMalformedOutput},
		{name: "error object", client: staticClient(`{"error": "unable to process this document"}`), text: "note", kind: KindMalformedOutput},
		{name: "refusal object", client: staticClient(`{"refusal": "I can't help"}`), text: "note", kind: KindMalformedOutput},
		{name: "error beside results", client: staticClient(`{"error": {"code": 500}, "results": {"primaryDiagnosis": {}}}`), text: "note", kind: KindMalformedOutput},
		{name: "unrelated keys", client: staticClient(`{"answer": "CHF", "confidence": 0.9}`), text: "note", kind: KindMalformedOutput},
		{name: "client panic", client: llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
			panic("boom")
		}), text: "note", kind: KindBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.client, Options{})
			res, conf, err := engine.Extract(context.Background(), analysis.TypeCodingReview, tt.text, Context{})
			if !errors.Is(err, ErrExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
			if got := KindOf(err); got != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, got)
			}
			if conf != analysis.SentinelConfidence {
				t.Fatalf("expected sentinel confidence, got %v", conf)
			}
			if !reflect.DeepEqual(res, analysis.EmptyCodingReview()) {
				t.Fatalf("expected canonical empty results on failure")
			}
		})
	}
}

func TestExtractEmptyDocumentSkipsBackend(t *testing.T) {
	var calls int32
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		atomic.AddInt32(&calls, 1)
		return `{}`, nil
	})
	engine := NewEngine(client, Options{})
	_, _, _ = engine.Extract(context.Background(), analysis.TypeQAReview, "", Context{})
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("backend should not be called for empty documents")
	}
}

func TestExtractTimeoutWithClientIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		<-release
		return `{}`, nil
	})
	engine := NewEngine(client, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, conf, err := engine.Extract(context.Background(), analysis.TypeQAReview, "note", Context{})
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if conf != analysis.SentinelConfidence {
		t.Fatalf("expected sentinel confidence, got %v", conf)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("extract did not honor timeout, took %s", elapsed)
	}
}

func TestExtractUnknownType(t *testing.T) {
	engine := NewEngine(staticClient(`{}`), Options{})
	res, _, err := engine.Extract(context.Background(), analysis.Type("xyz"), "note", Context{})
	if !errors.Is(err, analysis.ErrUnknownAnalysisType) {
		t.Fatalf("expected unknown analysis type, got %v", err)
	}
	if errors.Is(err, ErrExtraction) {
		t.Fatalf("unknown type is not an extraction failure")
	}
	if res != nil {
		t.Fatalf("expected nil results for unknown type")
	}
}

func TestExtractPassesPromptAndModel(t *testing.T) {
	var got llm.Request
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		got = req
		return `{"confidence": 0.8, "results": {}}`, nil
	})
	engine := NewEngine(client, Options{MaxDocumentRunes: 10})
	ctx := Context{FileName: "visit.pdf", Priority: "high", PatientRef: "MRN-7", Notes: "recert", Model: "gpt-4o"}
	if _, _, err := engine.Extract(context.Background(), analysis.TypeQAReview, strings.Repeat("a", 50), ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "gpt-4o" || got.System == "" {
		t.Fatalf("unexpected request: model=%q system empty=%v", got.Model, got.System == "")
	}
	for _, want := range []string{"\"complianceReview\"", "priority: high", "patient reference: MRN-7", "reviewer notes: recert", truncationMarker} {
		if !strings.Contains(got.Prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(got.Prompt, strings.Repeat("a", 11)) {
		t.Fatalf("document text was not truncated")
	}
}

func TestCleanJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                        `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"Sure! {\"a\":{\"b\":2}} thanks": `{"a":{"b":2}}`,
		"no json here":                   "no json here",
	}
	for in, want := range tests {
		if got := cleanJSON(in); got != want {
			t.Fatalf("cleanJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
