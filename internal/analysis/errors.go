package analysis

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidAnalysisType = errors.New("invalid analysis type")
	// ErrUnknownAnalysisType is the schema registry's lookup failure; it matches ErrInvalidAnalysisType.
	ErrUnknownAnalysisType = fmt.Errorf("unknown analysis type: %w", ErrInvalidAnalysisType)
	ErrInvalidTransition   = errors.New("invalid status transition")
)

const maxDiagnosticRunes = 500

// SanitizeDiagnostic flattens an error message into a single bounded line for records and logs.
func SanitizeDiagnostic(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) > maxDiagnosticRunes {
		msg = string([]rune(msg)[:maxDiagnosticRunes])
	}
	return msg
}

// DiagnosticFromError returns a sanitized diagnostic for err, or "" for nil.
func DiagnosticFromError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeDiagnostic(err.Error())
}
