// Package finalizer turns a finished call into its durable record: a
// plain-text transcript and one call-log row.
package finalizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/storage"
)

const separator = "--------------------------------------------------"

var roleLabels = map[session.Role]string{
	session.RoleUser:       "Customer",
	session.RoleAssistant:  "AI",
	session.RoleHumanAgent: "Agent",
}

// Finalizer writes the transcript first, then the call log. It implements
// session.Finalizer so the registry evicts a call only when both succeed.
type Finalizer struct {
	transcripts storage.TranscriptStore
	callLog     storage.CallLog
	logger      *slog.Logger
}

// New returns a Finalizer over the given stores.
func New(transcripts storage.TranscriptStore, callLog storage.CallLog, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{transcripts: transcripts, callLog: callLog, logger: logger}
}

// Finalize persists rec.
func (f *Finalizer) Finalize(ctx context.Context, rec *session.Record) error {
	ref, err := f.transcripts.WriteTranscript(ctx, rec.ID, FormatTranscript(rec))
	if err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := f.callLog.AppendCallLog(ctx, CallLogRow(rec, ref)); err != nil {
		return fmt.Errorf("appending call log: %w", err)
	}
	f.logger.Info("call finalized",
		"call_id", rec.ID,
		"duration_seconds", rec.DurationSeconds,
		"handled_by", rec.HandledBy,
		"outcome", rec.Outcome,
		"transcript", ref,
	)
	return nil
}

// FormatTranscript renders the header block followed by one line per
// transcript entry. Line breaks inside an entry are flattened so the body
// stays one line per entry.
func FormatTranscript(rec *session.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call ID: %s\n", rec.ID)
	fmt.Fprintf(&b, "Phone: %s\n", rec.Phone)
	fmt.Fprintf(&b, "Customer: %s\n", rec.CustomerName)
	fmt.Fprintf(&b, "Type: %s\n", rec.Type)
	fmt.Fprintf(&b, "Duration: %d seconds\n", rec.DurationSeconds)
	fmt.Fprintf(&b, "Outcome: %s\n", rec.Outcome)
	b.WriteString(separator + "\n")

	for _, e := range rec.Transcript {
		label, ok := roleLabels[e.Role]
		if !ok {
			label = string(e.Role)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp, label, flatten(e.Content))
	}
	return b.String()
}

func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

// CallLogRow builds the call-log row for rec. ref is where the transcript
// was written.
func CallLogRow(rec *session.Record, ref string) storage.CallLogRow {
	row := storage.CallLogRow{
		CallID:          rec.ID,
		CustomerName:    rec.CustomerName,
		Phone:           rec.Phone,
		Direction:       string(rec.Direction),
		Type:            rec.Type,
		StartTime:       rec.StartTime,
		DurationSeconds: rec.DurationSeconds,
		HandledBy:       string(rec.HandledBy),
		TakeoverReason:  rec.TakeoverReason,
		Outcome:         rec.Outcome,
		TranscriptFile:  ref,
		SentimentScore:  rec.Sentiment,
		AIConfidence:    rec.Confidence,
		Intent:          rec.Context.Intent,
		ModelDiscussed:  rec.Context.ModelDiscussed,
		FunctionsCalled: append([]string{}, rec.Context.FunctionsCalled...),
	}
	if rec.EndTime != nil {
		row.EndTime = *rec.EndTime
	}
	return row
}
