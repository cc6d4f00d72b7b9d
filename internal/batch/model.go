package batch

import (
	"time"

	"clinical-review-backend/internal/analysis"
)

// Metadata is shared by every document in a batch.
type Metadata struct {
	Priority   string
	PatientRef string
	Notes      string
	Model      string
	// TenantEmail identifies the owning agency; it is only resolved when Persist is set.
	TenantEmail string
	Persist     bool
}

// Summary is the outcome of one batch. It is returned even when every document failed.
type Summary struct {
	BatchID           string             `json:"batchId"`
	AnalysisType      analysis.Type      `json:"analysisType"`
	TenantID          string             `json:"tenantId,omitempty"`
	Records           []analysis.Record  `json:"records"`
	TotalCount        int                `json:"totalCount"`
	SuccessCount      int                `json:"successCount"`
	FailureCount      int                `json:"failureCount"`
	PersistenceErrors []PersistenceError `json:"persistenceErrors,omitempty"`
	StartedAt         time.Time          `json:"startedAt"`
	CompletedAt       time.Time          `json:"completedAt"`
	Duration          string             `json:"duration"`
}
