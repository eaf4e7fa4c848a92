package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalTranscripts keeps transcripts as text files in a directory.
type LocalTranscripts struct {
	Dir string
}

// NewLocalTranscripts creates the directory if needed.
func NewLocalTranscripts(dir string) (*LocalTranscripts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript dir %s: %w", dir, err)
	}
	return &LocalTranscripts{Dir: dir}, nil
}

// WriteTranscript writes the transcript atomically and returns its file name.
func (l *LocalTranscripts) WriteTranscript(_ context.Context, callID, text string) (string, error) {
	if err := validCallID(callID); err != nil {
		return "", err
	}
	name := transcriptName(callID)
	path := filepath.Join(l.Dir, name)

	tmp, err := os.CreateTemp(l.Dir, ".transcript-*")
	if err != nil {
		return "", fmt.Errorf("writing transcript %s: %w", callID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing transcript %s: %w", callID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing transcript %s: %w", callID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("writing transcript %s: %w", callID, err)
	}
	return name, nil
}

// ReadTranscript returns the stored transcript for callID.
func (l *LocalTranscripts) ReadTranscript(_ context.Context, callID string) (string, error) {
	if err := validCallID(callID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(l.Dir, transcriptName(callID)))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading transcript %s: %w", callID, err)
	}
	return string(data), nil
}
