package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// Service encapsulates health-related checks.
type Service struct {
	db          Pinger
	llmBackend  string
	resultStore string
	archive     string
}

// NewService constructs a health service. db may be nil when results are kept in memory.
func NewService(db Pinger, llmBackend, resultStore, archive string) *Service {
	return &Service{db: db, llmBackend: llmBackend, resultStore: resultStore, archive: archive}
}

// Status reports component backends. Only a failing database ping marks the service unhealthy.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Checks: map[string]string{
		"llm":         orNone(s.llmBackend),
		"resultStore": orNone(s.resultStore),
		"archive":     orNone(s.archive),
	}}
	if s.db == nil {
		return report
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		report.OK = false
		report.Checks["database"] = "unreachable"
		return report
	}
	report.Checks["database"] = "ok"
	return report
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
