// Package storage persists finished calls: plain-text transcripts keyed by
// call id and an append-only call log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a transcript or log row does not exist.
var ErrNotFound = errors.New("not found")

// CallLogRow is one call-log line summarising a finished call.
type CallLogRow struct {
	CallID          string    `json:"call_id"`
	CustomerName    string    `json:"customer_name"`
	Phone           string    `json:"phone"`
	Direction       string    `json:"direction"`
	Type            string    `json:"type"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	HandledBy       string    `json:"handled_by"`
	TakeoverReason  string    `json:"takeover_reason,omitempty"`
	Outcome         string    `json:"outcome"`
	TranscriptFile  string    `json:"transcript_file"`
	SentimentScore  float64   `json:"sentiment_score"`
	AIConfidence    float64   `json:"ai_confidence"`
	Intent          string    `json:"intent,omitempty"`
	ModelDiscussed  string    `json:"model_discussed,omitempty"`
	FunctionsCalled []string  `json:"functions_called"`
}

// TranscriptStore writes and reads call transcripts.
type TranscriptStore interface {
	// WriteTranscript stores text for callID and returns a reference to
	// where it was written.
	WriteTranscript(ctx context.Context, callID, text string) (string, error)
	ReadTranscript(ctx context.Context, callID string) (string, error)
}

// CallLog appends and queries call-log rows.
type CallLog interface {
	AppendCallLog(ctx context.Context, row CallLogRow) error
	// ListCallLogs returns rows newest first. limit <= 0 returns all rows.
	ListCallLogs(ctx context.Context, limit int) ([]CallLogRow, error)
	GetCallLog(ctx context.Context, callID string) (*CallLogRow, error)
}

// validCallID rejects ids that could escape a directory or key prefix.
func validCallID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid call id %q", id)
	}
	return nil
}

func transcriptName(callID string) string {
	return callID + ".txt"
}
