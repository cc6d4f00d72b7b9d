package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/analyzers"
	"clinical-review-backend/internal/notify"
	"clinical-review-backend/internal/queue"
	"clinical-review-backend/internal/results"
	"clinical-review-backend/internal/shared/metrics"
	"clinical-review-backend/internal/shared/storage/object"
	"clinical-review-backend/internal/shared/telemetry"
	"clinical-review-backend/internal/tenants"
)

const (
	defaultConcurrency = 4
	defaultModel       = "gpt-4o-mini"
)

// Dispatcher selects the analyzer for a type token.
type Dispatcher interface {
	Dispatch(token string) (analyzers.DocumentAnalyzer, error)
}

// Options tune batch execution.
type Options struct {
	// Concurrency bounds how many documents of one batch are analyzed at once.
	Concurrency int
	// Timeout bounds a whole batch. Documents not started by the deadline are marked failed.
	// Zero disables the deadline.
	Timeout      time.Duration
	DefaultModel string
}

// Deps are the collaborators of the coordinator. Stores, Tenants, Archive and Notifier are
// optional; without Stores and Tenants persisted batches are rejected.
type Deps struct {
	Dispatcher Dispatcher
	Queue      *queue.Queue
	Stores     *results.Stores
	Tenants    tenants.Resolver
	Archive    object.ObjectStore
	Notifier   notify.Notifier
}

// Service is the batch coordinator and the read surface over the queue and result stores.
type Service struct {
	dispatcher Dispatcher
	queue      *queue.Queue
	stores     *results.Stores
	tenants    tenants.Resolver
	archive    object.ObjectStore
	notifier   notify.Notifier
	opts       Options
	newID      func() string
	now        func() time.Time
}

// NewService wires a coordinator. A nil queue gets a fresh one.
func NewService(deps Deps, opts Options) *Service {
	if deps.Queue == nil {
		deps.Queue = queue.New()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = defaultModel
	}
	return &Service{
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		stores:     deps.Stores,
		tenants:    deps.Tenants,
		archive:    deps.Archive,
		notifier:   deps.Notifier,
		opts:       opts,
		newID:      uuid.NewString,
		now:        analysis.Now,
	}
}

// ProcessBatch analyzes every document with failure isolation. It fails outright only on batch-wide
// preconditions: an unknown analysis type, an empty batch, or an unresolvable tenant when Persist is set.
// In those cases no job is created.
func (s *Service) ProcessBatch(ctx context.Context, typeToken string, docs []analyzers.Document, meta Metadata) (Summary, error) {
	analyzer, err := s.dispatcher.Dispatch(typeToken)
	if err != nil {
		return Summary{}, err
	}
	if len(docs) == 0 {
		return Summary{}, ErrNoDocuments
	}

	var tenantID string
	if meta.Persist {
		if s.stores == nil || s.tenants == nil {
			return Summary{}, ErrPersistenceUnavailable
		}
		tenantID, err = s.tenants.ResolveByEmail(ctx, meta.TenantEmail)
		if err != nil {
			return Summary{}, err
		}
	}

	model := strings.TrimSpace(meta.Model)
	if model == "" {
		model = s.opts.DefaultModel
	}

	summary := Summary{
		BatchID:      s.newID(),
		AnalysisType: analyzer.Type(),
		TenantID:     tenantID,
		StartedAt:    s.now(),
		TotalCount:   len(docs),
	}
	metrics.IncBatch(string(analyzer.Type()))

	jobs := make([]analysis.Job, len(docs))
	for i, doc := range docs {
		jobs[i] = analysis.NewJob(s.newID(), doc.FileName, analyzer.Type(), meta.Priority, meta.PatientRef, meta.Notes, model)
		if err := s.queue.Register(jobs[i]); err != nil {
			// ids are fresh uuids; a collision means the id source is broken
			return Summary{}, fmt.Errorf("register job %s: %w", jobs[i].ID, err)
		}
	}

	batchCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	records := make([]analysis.Record, len(docs))
	var persistMu sync.Mutex
	var persistErrs []PersistenceError

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range docs {
		g.Go(func() error {
			rec, perr := s.processOne(batchCtx, analyzer, jobs[i], docs[i], tenantID, meta.Persist)
			records[i] = rec
			if perr != nil {
				persistMu.Lock()
				persistErrs = append(persistErrs, *perr)
				persistMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range records {
		if rec.Status == analysis.StatusCompleted {
			summary.SuccessCount++
		} else {
			summary.FailureCount++
		}
	}
	summary.Records = records
	summary.PersistenceErrors = persistErrs
	summary.CompletedAt = s.now()
	summary.Duration = analysis.FormatDuration(summary.CompletedAt.Sub(summary.StartedAt))

	telemetry.Info("batch.complete", map[string]any{
		"request_id":         analysis.RequestIDFromContext(ctx),
		"batch_id":           summary.BatchID,
		"analysis_type":      summary.AnalysisType,
		"total_count":        summary.TotalCount,
		"success_count":      summary.SuccessCount,
		"failure_count":      summary.FailureCount,
		"persistence_errors": len(persistErrs),
		"duration":           summary.Duration,
	})
	return summary, nil
}

// processOne never panics and always returns a terminal record for the job. Only a failure before
// Analyze returns substitutes a placeholder; later steps keep the analyzed record.
func (s *Service) processOne(batchCtx context.Context, analyzer analyzers.DocumentAnalyzer, job analysis.Job, doc analyzers.Document, tenantID string, persist bool) (rec analysis.Record, perr *PersistenceError) {
	if err := batchCtx.Err(); err != nil {
		return s.fallback(job.ID, analysis.StatusFailed, fmt.Sprintf("batch timeout: document not started before deadline (%v)", err)), nil
	}

	// once started, a document runs to completion regardless of the batch deadline
	ctx := context.WithoutCancel(batchCtx)

	var sourceKey string
	if persist && s.archive != nil {
		sourceKey = s.archiveDocument(ctx, tenantID, job, doc)
	}

	rec = s.analyze(ctx, analyzer, job, doc)
	if !persist {
		return rec, nil
	}
	rec.SourceKey = sourceKey
	return s.persist(ctx, tenantID, rec)
}

func (s *Service) analyze(ctx context.Context, analyzer analyzers.DocumentAnalyzer, job analysis.Job, doc analyzers.Document) (rec analysis.Record) {
	defer func() {
		if r := recover(); r != nil {
			rec = s.fallback(job.ID, analysis.StatusError, fmt.Sprintf("panic: %v", r))
		}
	}()
	rec = analyzer.Analyze(ctx, job, doc, func(j analysis.Job) {
		if err := s.queue.Update(j); err != nil {
			telemetry.Warn("queue.update_failed", map[string]any{"job_id": j.ID, "error": err.Error()})
		}
	})
	return rec
}

// archiveDocument stores the raw upload and returns its key, or "" when archiving failed.
func (s *Service) archiveDocument(ctx context.Context, tenantID string, job analysis.Job, doc analyzers.Document) (key string) {
	warn := func(diag string) {
		telemetry.Warn("batch.archive_failed", map[string]any{
			"request_id": analysis.RequestIDFromContext(ctx),
			"job_id":     job.ID,
			"error":      diag,
		})
	}
	defer func() {
		if r := recover(); r != nil {
			key = ""
			warn(fmt.Sprintf("panic: %v", r))
		}
	}()
	key, _, _, err := s.archive.Save(ctx, tenantID, job.ID, doc.FileName, bytes.NewReader(doc.Data))
	if err != nil {
		warn(analysis.DiagnosticFromError(err))
		return ""
	}
	return key
}

func (s *Service) persist(ctx context.Context, tenantID string, rec analysis.Record) (out analysis.Record, perr *PersistenceError) {
	report := func(diag string) *PersistenceError {
		telemetry.Error("batch.persist_failed", map[string]any{
			"request_id":    analysis.RequestIDFromContext(ctx),
			"job_id":        rec.ID,
			"analysis_type": rec.AnalysisType,
			"error":         diag,
		})
		return &PersistenceError{JobID: rec.ID, FileName: rec.FileName, Message: diag}
	}
	defer func() {
		if r := recover(); r != nil {
			out, perr = rec, report(fmt.Sprintf("panic: %v", r))
		}
	}()

	store, err := s.stores.For(rec.AnalysisType)
	if err == nil {
		var saved analysis.Record
		saved, err = store.Save(ctx, tenantID, rec)
		if err == nil {
			s.publish(ctx, saved)
			return saved, nil
		}
	}
	return rec, report(analysis.DiagnosticFromError(err))
}

// publish announces a saved record. Failures, panics included, are logged and never reach the caller.
func (s *Service) publish(ctx context.Context, rec analysis.Record) {
	msg := notify.Message{
		AnalysisID:   rec.ID,
		AnalysisType: string(rec.AnalysisType),
		TenantID:     rec.TenantID,
		Status:       string(rec.Status),
		RequestID:    analysis.RequestIDFromContext(ctx),
	}
	if rec.CompletedAt != nil {
		msg.CompletedAt = rec.CompletedAt.Format(time.RFC3339Nano)
	}
	warn := func(diag string) {
		telemetry.Warn("batch.notify_failed", map[string]any{
			"request_id":  msg.RequestID,
			"analysis_id": rec.ID,
			"error":       diag,
		})
	}
	defer func() {
		if r := recover(); r != nil {
			warn(fmt.Sprintf("panic: %v", r))
		}
	}()
	if err := s.notifier.Send(ctx, msg); err != nil {
		warn(analysis.DiagnosticFromError(err))
	}
}

// fallback settles the queued job in a terminal state and builds its placeholder record.
func (s *Service) fallback(jobID string, status analysis.Status, diagnostic string) analysis.Record {
	job, err := s.queue.Get(jobID)
	if err != nil {
		job = analysis.Job{ID: jobID, Status: status}
	}
	if !job.Status.Terminal() {
		if terr := job.Transition(status, s.now(), diagnostic); terr == nil {
			_ = s.queue.Update(job)
		}
		label := string(job.AnalysisType)
		if status == analysis.StatusFailed {
			metrics.IncAnalysisFailed(label)
		} else {
			metrics.IncAnalysisError(label)
		}
	}
	telemetry.Warn("analysis.status", map[string]any{
		"job_id":        job.ID,
		"analysis_type": job.AnalysisType,
		"status":        status,
		"diagnostic":    analysis.SanitizeDiagnostic(diagnostic),
	})
	rec, ferr := analysis.FallbackRecord(job, status, diagnostic)
	if ferr != nil {
		rec = analysis.RecordFromJob(job)
		rec.Status = status
		rec.Confidence = analysis.SentinelConfidence
		rec.Diagnostic = analysis.SanitizeDiagnostic(diagnostic)
	}
	return rec
}

// Queue returns jobs in registration order, optionally filtered by type.
func (s *Service) Queue(typeToken string) ([]analysis.Job, error) {
	if strings.TrimSpace(typeToken) == "" {
		return s.queue.List(""), nil
	}
	t, err := analysis.ParseType(typeToken)
	if err != nil {
		return nil, err
	}
	return s.queue.List(t), nil
}

// Job returns one queued job.
func (s *Service) Job(jobID string) (analysis.Job, error) {
	return s.queue.Get(jobID)
}

// ResolveTenant maps a contact address to a tenant id.
func (s *Service) ResolveTenant(ctx context.Context, email string) (string, error) {
	if s.tenants == nil {
		return "", ErrPersistenceUnavailable
	}
	return s.tenants.ResolveByEmail(ctx, email)
}

func (s *Service) store(typeToken string) (results.Store, error) {
	t, err := analysis.ParseType(typeToken)
	if err != nil {
		return nil, err
	}
	if s.stores == nil {
		return nil, ErrPersistenceUnavailable
	}
	return s.stores.For(t)
}

// GetResult returns a persisted record of the given type.
func (s *Service) GetResult(ctx context.Context, typeToken, analysisID string) (analysis.Record, error) {
	store, err := s.store(typeToken)
	if err != nil {
		return analysis.Record{}, err
	}
	return store.GetByID(ctx, analysisID)
}

// ListResultsForTenant returns one type's records for a tenant, newest first.
func (s *Service) ListResultsForTenant(ctx context.Context, typeToken, tenantID string) ([]analysis.Record, error) {
	store, err := s.store(typeToken)
	if err != nil {
		return nil, err
	}
	return store.ListByTenant(ctx, tenantID)
}

// ListAllResultsForTenant merges every type's records for a tenant, newest first.
func (s *Service) ListAllResultsForTenant(ctx context.Context, tenantID string) ([]analysis.Record, error) {
	if s.stores == nil {
		return nil, ErrPersistenceUnavailable
	}
	return s.stores.ListAllForTenant(ctx, tenantID)
}

// DeleteResult removes a persisted record and, best effort, its archived source document.
func (s *Service) DeleteResult(ctx context.Context, typeToken, analysisID string) (bool, error) {
	store, err := s.store(typeToken)
	if err != nil {
		return false, err
	}
	var sourceKey string
	if s.archive != nil {
		rec, err := store.GetByID(ctx, analysisID)
		switch {
		case errors.Is(err, results.ErrNotFound):
			return false, nil
		case err != nil:
			return false, err
		}
		sourceKey = rec.SourceKey
	}
	ok, err := store.DeleteByID(ctx, analysisID)
	if err != nil || !ok {
		return ok, err
	}
	if sourceKey != "" {
		if err := s.archive.Delete(ctx, sourceKey); err != nil {
			telemetry.Warn("batch.archive_delete_failed", map[string]any{
				"analysis_id": analysisID,
				"error":       analysis.DiagnosticFromError(err),
			})
		}
	}
	return true, nil
}
