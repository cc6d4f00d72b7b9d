package batch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/analyzers"
	"clinical-review-backend/internal/queue"
	"clinical-review-backend/internal/results"
	"clinical-review-backend/internal/shared/server/middleware"
	"clinical-review-backend/internal/shared/server/respond"
	"clinical-review-backend/internal/tenants"
)

const defaultMaxUploadBytes int64 = 25 << 20

// Handler wires HTTP handlers to the batch service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler. maxUploadBytes <= 0 uses the default request cap.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches batch and result routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses/:type/batch", h.processBatch)
	rg.GET("/analyses/:type/results", h.listResults)
	rg.GET("/analyses/:type/results/:id", h.getResult)
	rg.DELETE("/analyses/:type/results/:id", h.deleteResult)
	rg.GET("/results", h.listAllResults)
	rg.GET("/queue", h.listQueue)
	rg.GET("/queue/:id", h.getJob)
}

func requestContext(c *gin.Context) context.Context {
	return analysis.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) processBatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form is required", nil)
		return
	}

	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = form.File["files"]
	}
	docs := make([]analyzers.Document, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", []map[string]string{
				{"field": "files", "issue": fh.Filename},
			})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", []map[string]string{
				{"field": "files", "issue": fh.Filename},
			})
			return
		}
		docs = append(docs, analyzers.Document{
			Data:        data,
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	persist := false
	if v := strings.TrimSpace(c.PostForm("persist")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "persist must be a boolean", nil)
			return
		}
		persist = parsed
	}
	meta := Metadata{
		Priority:    c.PostForm("priority"),
		PatientRef:  c.PostForm("patientRef"),
		Notes:       c.PostForm("notes"),
		Model:       c.PostForm("model"),
		TenantEmail: c.PostForm("tenantEmail"),
		Persist:     persist,
	}

	summary, err := h.Svc.ProcessBatch(requestContext(c), c.Param("type"), docs, meta)
	if err != nil {
		h.writeError(c, err, "failed to process batch")
		return
	}
	c.Set("batchId", summary.BatchID)
	respond.OK(c, summary)
}

func (h *Handler) listQueue(c *gin.Context) {
	jobs, err := h.Svc.Queue(c.Query("type"))
	if err != nil {
		h.writeError(c, err, "failed to list queue")
		return
	}
	respond.OK(c, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.Svc.Job(c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch job")
		return
	}
	respond.OK(c, job)
}

func (h *Handler) getResult(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	rec, err := h.Svc.GetResult(requestContext(c), c.Param("type"), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch result")
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) deleteResult(c *gin.Context) {
	c.Set("analysisId", c.Param("id"))
	ok, err := h.Svc.DeleteResult(requestContext(c), c.Param("type"), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to delete result")
		return
	}
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "result not found", nil)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) listResults(c *gin.Context) {
	ctx := requestContext(c)
	tenantID, ok := h.tenantFromQuery(c, ctx)
	if !ok {
		return
	}
	list, err := h.Svc.ListResultsForTenant(ctx, c.Param("type"), tenantID)
	if err != nil {
		h.writeError(c, err, "failed to list results")
		return
	}
	respond.OK(c, gin.H{"tenantId": tenantID, "results": list, "count": len(list)})
}

func (h *Handler) listAllResults(c *gin.Context) {
	ctx := requestContext(c)
	tenantID, ok := h.tenantFromQuery(c, ctx)
	if !ok {
		return
	}
	list, err := h.Svc.ListAllResultsForTenant(ctx, tenantID)
	if err != nil {
		h.writeError(c, err, "failed to list results")
		return
	}
	respond.OK(c, gin.H{"tenantId": tenantID, "results": list, "count": len(list)})
}

func (h *Handler) tenantFromQuery(c *gin.Context, ctx context.Context) (string, bool) {
	email := strings.TrimSpace(c.Query("tenantEmail"))
	if email == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "tenantEmail is required", []map[string]string{
			{"field": "tenantEmail", "issue": "required"},
		})
		return "", false
	}
	tenantID, err := h.Svc.ResolveTenant(ctx, email)
	if err != nil {
		h.writeError(c, err, "failed to resolve tenant")
		return "", false
	}
	return tenantID, true
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, analysis.ErrInvalidAnalysisType):
		respond.Error(c, http.StatusBadRequest, "invalid_analysis_type", err.Error(), gin.H{"supported": analysis.Types()})
	case errors.Is(err, ErrNoDocuments):
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one file is required", []map[string]string{
			{"field": "files", "issue": "required"},
		})
	case errors.Is(err, tenants.ErrTenantNotFound):
		respond.Error(c, http.StatusNotFound, "tenant_not_found", "no agency matches tenantEmail", nil)
	case errors.Is(err, results.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "result not found", nil)
	case errors.Is(err, queue.ErrJobNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
	case errors.Is(err, ErrPersistenceUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "persistence_unavailable", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
