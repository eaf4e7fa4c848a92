package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLCallLog appends call-log rows as JSON lines to a file.
type JSONLCallLog struct {
	mu   sync.Mutex
	path string
}

// NewJSONLCallLog creates the parent directory if needed.
func NewJSONLCallLog(path string) (*JSONLCallLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating call log dir: %w", err)
	}
	return &JSONLCallLog{path: path}, nil
}

// AppendCallLog appends one row and syncs it to disk.
func (j *JSONLCallLog) AppendCallLog(_ context.Context, row CallLogRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding call log row: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening call log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending call log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing call log: %w", err)
	}
	return f.Close()
}

func (j *JSONLCallLog) readAll() ([]CallLogRow, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening call log: %w", err)
	}
	defer f.Close()

	var rows []CallLogRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var row CallLogRow
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("call log line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading call log: %w", err)
	}
	return rows, nil
}

// ListCallLogs returns rows newest first.
func (j *JSONLCallLog) ListCallLogs(_ context.Context, limit int) ([]CallLogRow, error) {
	rows, err := j.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]CallLogRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetCallLog returns the row for callID.
func (j *JSONLCallLog) GetCallLog(_ context.Context, callID string) (*CallLogRow, error) {
	rows, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].CallID == callID {
			return &rows[i], nil
		}
	}
	return nil, ErrNotFound
}
