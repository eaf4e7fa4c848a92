package callcenter

import (
	"context"
	"errors"

	"github.com/szaher/dealerline/internal/storage"
)

// Stats summarises finished and live calls.
type Stats struct {
	TotalCalls    int     `json:"total_calls"`
	TodayCalls    int     `json:"today_calls"`
	ActiveCalls   int     `json:"active_calls"`
	AIHandled     int     `json:"ai_handled"`
	HumanTakeover int     `json:"human_takeover"`
	AvgDuration   float64 `json:"avg_duration"`
}

// CallLogs returns finished calls newest first.
func (c *Center) CallLogs(ctx context.Context, limit int) ([]storage.CallLogRow, error) {
	if c.logs == nil {
		return nil, ErrHistoryUnavailable
	}
	rows, err := c.logs.ListCallLogs(ctx, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []storage.CallLogRow{}
	}
	return rows, nil
}

// CallLog returns one finished call, or nil if it does not exist.
func (c *Center) CallLog(ctx context.Context, id string) (*storage.CallLogRow, error) {
	if c.logs == nil {
		return nil, ErrHistoryUnavailable
	}
	row, err := c.logs.GetCallLog(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return row, err
}

// Transcript returns the stored transcript of a finished call. ok is false
// if it does not exist.
func (c *Center) Transcript(ctx context.Context, id string) (text string, ok bool, err error) {
	if c.transcripts == nil {
		return "", false, ErrHistoryUnavailable
	}
	text, err = c.transcripts.ReadTranscript(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Stats aggregates the call log and the live registry.
func (c *Center) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ActiveCalls: c.sessions.Count()}
	if c.logs == nil {
		return st, nil
	}
	rows, err := c.logs.ListCallLogs(ctx, 0)
	if err != nil {
		return nil, err
	}

	today := c.now().Format("2006-01-02")
	var total int64
	for _, r := range rows {
		st.TotalCalls++
		total += r.DurationSeconds
		if r.StartTime.In(c.now().Location()).Format("2006-01-02") == today {
			st.TodayCalls++
		}
		switch r.HandledBy {
		case "ai":
			st.AIHandled++
		case "ai_then_human":
			st.HumanTakeover++
		}
	}
	if st.TotalCalls > 0 {
		st.AvgDuration = float64(total) / float64(st.TotalCalls)
	}
	return st, nil
}
