package heuristics

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/szaher/dealerline/internal/llm"
)

// Estimator applies the heuristics with a lexicon that can be swapped while
// turns are running.
type Estimator struct {
	lex    atomic.Pointer[Lexicon]
	logger *slog.Logger
}

// NewEstimator creates an estimator. A nil lexicon uses DefaultLexicon.
func NewEstimator(lex *Lexicon, logger *slog.Logger) *Estimator {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Estimator{logger: logger}
	e.lex.Store(lex)
	return e
}

// Lexicon returns the lexicon currently in effect.
func (e *Estimator) Lexicon() *Lexicon {
	return e.lex.Load()
}

// Confidence applies Confidence with the current lexicon.
func (e *Estimator) Confidence(reply *llm.ChatResponse, utterance string) float64 {
	return Confidence(e.lex.Load(), reply, utterance)
}

// Sentiment applies Sentiment with the current lexicon.
func (e *Estimator) Sentiment(utterance string) float64 {
	return Sentiment(e.lex.Load(), utterance)
}

// Reload replaces the lexicon with the contents of path. On error the
// current lexicon stays in effect.
func (e *Estimator) Reload(path string) error {
	lex, err := LoadLexicon(path)
	if err != nil {
		return err
	}
	e.lex.Store(lex)
	e.logger.Info("lexicon reloaded", "path", path,
		"confused", len(lex.Confused), "negative", len(lex.Negative), "positive", len(lex.Positive))
	return nil
}

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the lexicon whenever path changes, until ctx is done. The
// parent directory is watched so that editors replacing the file atomically
// are picked up.
func (e *Estimator) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating lexicon watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving lexicon path %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-fire:
			if err := e.Reload(abs); err != nil {
				e.logger.Warn("lexicon reload failed, keeping previous", "path", abs, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("lexicon watcher error", "error", err)
		}
	}
}
