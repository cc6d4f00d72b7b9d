package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/llm"
)

const (
	// DefaultConfidence applies when the model does not report one.
	DefaultConfidence = 0.75

	defaultTimeout  = 120 * time.Second
	defaultMaxRunes = 60000
)

// Options tune the engine.
type Options struct {
	// Timeout bounds each backend call.
	Timeout          time.Duration
	MaxDocumentRunes int
}

// Engine turns document text into a filled results value by prompting a model backend.
type Engine struct {
	client   llm.Client
	timeout  time.Duration
	maxRunes int
}

// NewEngine returns an engine over client. A nil client behaves like llm.Disabled.
func NewEngine(client llm.Client, opts Options) *Engine {
	if client == nil {
		client = llm.Disabled{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxDocumentRunes <= 0 {
		opts.MaxDocumentRunes = defaultMaxRunes
	}
	return &Engine{client: client, timeout: opts.Timeout, maxRunes: opts.MaxDocumentRunes}
}

// Extract fills the results shape for t from text. Every backend problem comes back as an *Error
// together with the canonical empty value and the sentinel confidence. An unknown type returns
// analysis.ErrUnknownAnalysisType and nil results.
func (e *Engine) Extract(ctx context.Context, t analysis.Type, text string, c Context) (analysis.Results, float64, error) {
	empty, err := analysis.EmptyResult(t)
	if err != nil {
		return nil, analysis.SentinelConfidence, err
	}
	fail := func(kind Kind, cause error) (analysis.Results, float64, error) {
		return empty, analysis.SentinelConfidence, newError(kind, cause)
	}

	if strings.TrimSpace(text) == "" {
		return fail(KindEmptyDocument, errors.New("document contains no extractable text"))
	}

	prompt, err := buildPrompt(t, text, c, e.maxRunes)
	if err != nil {
		return nil, analysis.SentinelConfidence, err
	}

	raw, err := e.complete(ctx, llm.Request{Model: c.Model, System: systemPrompt, Prompt: prompt})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(KindTimeout, err)
		}
		return fail(KindBackend, err)
	}

	res, confidence, err := parseOutput(t, raw)
	if err != nil {
		return fail(KindMalformedOutput, err)
	}
	if confidence <= analysis.SentinelConfidence {
		return fail(KindLowConfidence, fmt.Errorf("model reported confidence %.2f", confidence))
	}
	return res, confidence, nil
}

// complete runs the backend call under the engine timeout. The call runs on its own goroutine so a
// client that ignores its context still cannot hold the caller past the deadline.
func (e *Engine) complete(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("llm client panic: %v", r)}
			}
		}()
		out, err := e.client.Complete(ctx, req)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil && !errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ctx.Err(), r.err)
		}
		return r.out, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("llm call exceeded %s: %w", e.timeout, ctx.Err())
	}
}

// refusalKeys mark a model reply that declined or reported an error instead of answering.
var refusalKeys = []string{"error", "refusal"}

func parseOutput(t analysis.Type, raw string) (analysis.Results, float64, error) {
	body := cleanJSON(raw)
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, 0, fmt.Errorf("model output is not a JSON object: %w", err)
	}
	for _, k := range refusalKeys {
		if v, ok := envelope[k]; ok && !isJSONNull(v) {
			return nil, 0, fmt.Errorf("model output reports %s: %s", k, truncateRunes(string(v), 200))
		}
	}

	confidence := DefaultConfidence
	if v, ok := readConfidence(envelope["confidence"]); ok {
		confidence = clamp(v)
	}

	resultsRaw, ok := envelope["results"]
	if !ok {
		fields, err := analysis.FieldNames(t)
		if err != nil {
			return nil, 0, err
		}
		matched := false
		for _, f := range fields {
			if _, ok := envelope[f]; ok {
				matched = true
				break
			}
		}
		if !matched {
			return nil, 0, errors.New("model output has no results fields")
		}
		delete(envelope, "confidence")
		b, err := json.Marshal(envelope)
		if err != nil {
			return nil, 0, err
		}
		resultsRaw = b
	}
	if trimmed := bytes.TrimSpace(resultsRaw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, 0, errors.New("model output results is not an object")
	}
	res, err := analysis.DecodeResults(t, resultsRaw)
	if err != nil {
		return nil, 0, err
	}
	return res, confidence, nil
}

// readConfidence reports a finite numeric confidence. Null, strings and other values count as absent.
func readConfidence(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isJSONNull(trimmed) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
