package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the schema-stable result of analyzing one document.
type Record struct {
	ID             string     `json:"id"`
	FileName       string     `json:"fileName"`
	AnalysisType   Type       `json:"analysisType"`
	Status         Status     `json:"status"`
	Priority       string     `json:"priority"`
	PatientRef     string     `json:"patientRef"`
	Notes          string     `json:"notes"`
	Model          string     `json:"model"`
	Results        Results    `json:"results"`
	Confidence     float64    `json:"confidence"`
	ProcessingTime string     `json:"processingTime"`
	Diagnostic     string     `json:"diagnostic"`
	TenantID       string     `json:"tenantId,omitempty"`
	SourceKey      string     `json:"sourceKey,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// FallbackRecord builds a terminal record carrying the canonical empty results for job's type.
func FallbackRecord(job Job, status Status, diagnostic string) (Record, error) {
	empty, err := EmptyResult(job.AnalysisType)
	if err != nil {
		return Record{}, err
	}
	rec := RecordFromJob(job)
	rec.Status = status
	rec.Results = empty
	rec.Confidence = SentinelConfidence
	rec.Diagnostic = SanitizeDiagnostic(diagnostic)
	return rec, nil
}

// RecordFromJob copies the job's identity and metadata onto a record; results are left to the caller.
func RecordFromJob(job Job) Record {
	rec := Record{
		ID:             job.ID,
		FileName:       job.FileName,
		AnalysisType:   job.AnalysisType,
		Status:         job.Status,
		Priority:       job.Priority,
		PatientRef:     job.PatientRef,
		Notes:          job.Notes,
		Model:          job.Model,
		ProcessingTime: job.ProcessingDuration,
		Diagnostic:     job.Diagnostic,
		CreatedAt:      job.CreatedAt,
	}
	if job.CompletedAt != nil {
		completed := *job.CompletedAt
		rec.CompletedAt = &completed
	}
	return rec
}

type recordAlias Record

type recordWire struct {
	recordAlias
	Results json.RawMessage `json:"results"`
}

// UnmarshalJSON decodes results into the variant named by analysisType.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Record(wire.recordAlias)
	if !r.AnalysisType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAnalysisType, string(r.AnalysisType))
	}
	res, err := DecodeResults(r.AnalysisType, wire.Results)
	if err != nil {
		return err
	}
	r.Results = res
	return nil
}
