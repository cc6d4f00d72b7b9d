package notify

import (
	"context"
	"encoding/json"
)

const messageVersion = 1

// Notifier publishes result events to downstream consumers.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Message announces that a result record was persisted.
type Message struct {
	AnalysisID   string `json:"analysisId"`
	AnalysisType string `json:"analysisType"`
	TenantID     string `json:"tenantId"`
	Status       string `json:"status"`
	RequestID    string `json:"requestId,omitempty"`
	CompletedAt  string `json:"completedAt"`
	Version      int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message, stamping the current version when unset.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = messageVersion
	}
	return json.Marshal(msg)
}

// Noop drops every message.
type Noop struct{}

// Send does nothing.
func (Noop) Send(ctx context.Context, msg Message) error {
	_ = ctx
	_ = msg
	return nil
}
