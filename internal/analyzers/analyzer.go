package analyzers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/extract"
	"clinical-review-backend/internal/extraction"
	"clinical-review-backend/internal/shared/metrics"
	"clinical-review-backend/internal/shared/telemetry"
)

// Extractor is the extraction engine contract the analyzers depend on.
type Extractor interface {
	Extract(ctx context.Context, t analysis.Type, text string, c extraction.Context) (analysis.Results, float64, error)
}

// Document is one uploaded file.
type Document struct {
	Data        []byte
	FileName    string
	ContentType string
}

// StatusFunc observes every job transition. It must not retain the job.
type StatusFunc func(job analysis.Job)

// DocumentAnalyzer runs one document through decode, extraction and classification.
type DocumentAnalyzer interface {
	Type() analysis.Type
	Analyze(ctx context.Context, job analysis.Job, doc Document, onStatus StatusFunc) analysis.Record
}

// Analyzer is the DocumentAnalyzer for a single analysis type.
type Analyzer struct {
	analysisType analysis.Type
	engine       Extractor
	decode       func(data []byte, fileName, contentType string) (string, bool, error)
	now          func() time.Time
}

// New returns an analyzer for t backed by engine.
func New(t analysis.Type, engine Extractor) *Analyzer {
	return &Analyzer{
		analysisType: t,
		engine:       engine,
		decode:       extract.DecodeText,
		now:          analysis.Now,
	}
}

func (a *Analyzer) Type() analysis.Type { return a.analysisType }

// Analyze always returns a structurally complete terminal record:
//   - completed when extraction succeeds,
//   - failed when the engine reports a clean extraction failure,
//   - error for anything else, including panics.
func (a *Analyzer) Analyze(ctx context.Context, job analysis.Job, doc Document, onStatus StatusFunc) (rec analysis.Record) {
	if onStatus == nil {
		onStatus = func(analysis.Job) {}
	}
	defer func() {
		if r := recover(); r != nil {
			rec = a.finishWithError(ctx, &job, fmt.Errorf("panic: %v", r), onStatus)
		}
	}()

	if job.AnalysisType != a.analysisType {
		return a.finishWithError(ctx, &job, fmt.Errorf("%w: analyzer %s received %s job", analysis.ErrInvalidAnalysisType, a.analysisType, job.AnalysisType), onStatus)
	}

	text, lossy, decodeErr := a.decode(doc.Data, doc.FileName, doc.ContentType)
	if lossy {
		telemetry.Warn("analysis.decode_lossy", map[string]any{
			"request_id":    analysis.RequestIDFromContext(ctx),
			"job_id":        job.ID,
			"analysis_type": a.analysisType,
			"error":         analysis.DiagnosticFromError(decodeErr),
		})
	}

	if err := a.transition(ctx, &job, analysis.StatusProcessing, "", "", onStatus); err != nil {
		return a.finishWithError(ctx, &job, err, onStatus)
	}

	results, confidence, err := a.engine.Extract(ctx, a.analysisType, text, extraction.Context{
		FileName:   doc.FileName,
		Priority:   job.Priority,
		PatientRef: job.PatientRef,
		Notes:      job.Notes,
		Model:      job.Model,
	})

	switch {
	case err == nil:
		if terr := a.transition(ctx, &job, analysis.StatusCompleted, "", "", onStatus); terr != nil {
			return a.finishWithError(ctx, &job, terr, onStatus)
		}
		rec = analysis.RecordFromJob(job)
		rec.Results = results
		rec.Confidence = confidence
		return rec
	case errors.Is(err, extraction.ErrExtraction):
		diag := err.Error()
		if lossy && decodeErr != nil {
			diag = fmt.Sprintf("%s; %s", diag, decodeErr.Error())
		}
		if terr := a.transition(ctx, &job, analysis.StatusFailed, diag, extraction.KindOf(err), onStatus); terr != nil {
			return a.finishWithError(ctx, &job, terr, onStatus)
		}
		fallback, ferr := analysis.FallbackRecord(job, analysis.StatusFailed, job.Diagnostic)
		if ferr != nil {
			return a.finishWithError(ctx, &job, ferr, onStatus)
		}
		return fallback
	default:
		return a.finishWithError(ctx, &job, err, onStatus)
	}
}

// finishWithError moves job to the error state when it is not already terminal and builds the
// fallback record. It must not panic; an unknown type still yields a record with empty results.
func (a *Analyzer) finishWithError(ctx context.Context, job *analysis.Job, cause error, onStatus StatusFunc) analysis.Record {
	diag := analysis.DiagnosticFromError(cause)
	if !job.Status.Terminal() {
		_ = a.transition(ctx, job, analysis.StatusError, diag, "", onStatus)
	}
	rec, err := analysis.FallbackRecord(*job, analysis.StatusError, diag)
	if err != nil {
		rec = analysis.RecordFromJob(*job)
		rec.Status = analysis.StatusError
		rec.Confidence = analysis.SentinelConfidence
		rec.Diagnostic = diag
	}
	return rec
}

func (a *Analyzer) transition(ctx context.Context, job *analysis.Job, next analysis.Status, diagnostic string, kind extraction.Kind, onStatus StatusFunc) error {
	from := job.Status
	if err := job.Transition(next, a.now(), diagnostic); err != nil {
		return err
	}
	label := string(job.AnalysisType)
	fields := map[string]any{
		"request_id":        analysis.RequestIDFromContext(ctx),
		"job_id":            job.ID,
		"file_name":         job.FileName,
		"analysis_type":     job.AnalysisType,
		"status":            job.Status,
		"status_transition": fmt.Sprintf("%s->%s", from, next),
	}
	switch next {
	case analysis.StatusProcessing:
		metrics.IncAnalysisStarted(label)
	case analysis.StatusCompleted:
		metrics.IncAnalysisCompleted(label)
	case analysis.StatusFailed:
		metrics.IncAnalysisFailed(label)
	case analysis.StatusError:
		metrics.IncAnalysisError(label)
	}
	if next.Terminal() {
		ms := durationMs(job)
		metrics.ObserveAnalysisDurationMs(label, ms)
		fields["duration_ms"] = ms
		if job.Diagnostic != "" {
			fields["diagnostic"] = job.Diagnostic
		}
	}
	if kind != "" {
		fields["failure_kind"] = string(kind)
		metrics.IncFailureKind(string(kind))
	}
	if next == analysis.StatusError {
		telemetry.Error("analysis.status", fields)
	} else {
		telemetry.Info("analysis.status", fields)
	}
	onStatus(*job)
	return nil
}

func durationMs(job *analysis.Job) float64 {
	if job.CompletedAt == nil {
		return 0
	}
	from := job.CreatedAt
	if job.StartedAt != nil {
		from = *job.StartedAt
	}
	return float64(job.CompletedAt.Sub(from).Microseconds()) / 1000.0
}

var _ DocumentAnalyzer = (*Analyzer)(nil)
