package batch

import "errors"

var (
	ErrNoDocuments            = errors.New("batch contains no documents")
	ErrPersistenceUnavailable = errors.New("result persistence is not configured")
)

// PersistenceError records a per-document save failure. The document's record is still returned.
type PersistenceError struct {
	JobID    string `json:"jobId"`
	FileName string `json:"fileName"`
	Message  string `json:"message"`
}
