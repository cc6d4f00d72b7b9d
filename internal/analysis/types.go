package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies one of the fixed analysis domains.
type Type string

const (
	TypeQAReview              Type = "qa-review"
	TypeCodingReview          Type = "coding-review"
	TypeFinancialOptimization Type = "financial-optimization"
)

// Types returns every supported analysis type in a stable order.
func Types() []Type {
	return []Type{TypeQAReview, TypeCodingReview, TypeFinancialOptimization}
}

// Valid reports whether t is one of the supported analysis types.
func (t Type) Valid() bool {
	switch t {
	case TypeQAReview, TypeCodingReview, TypeFinancialOptimization:
		return true
	default:
		return false
	}
}

// ParseType normalizes a caller-supplied token. Unknown tokens never default.
func ParseType(token string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(token)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAnalysisType, token)
	}
	return t, nil
}

// Status is the lifecycle state of a job or record.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusError
}

const (
	// SentinelConfidence marks placeholder values produced without a real extraction.
	SentinelConfidence = 0.1
	// DefaultPriority applies when the caller leaves priority blank.
	DefaultPriority = "medium"
)

// Now returns the current UTC time at the precision the durable store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatDuration renders a processing duration as a short human-readable string.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm %ds", m, s)
	}
}
