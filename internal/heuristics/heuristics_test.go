package heuristics

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/szaher/dealerline/internal/llm"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestConfidence(t *testing.T) {
	lex := DefaultLexicon()
	withAction := &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "1", Name: "get_vehicle_info"}}}
	plain := &llm.ChatResponse{Content: "hello"}

	tests := []struct {
		name      string
		reply     *llm.ChatResponse
		utterance string
		want      float64
	}{
		{"baseline", plain, "mujhe Nexon ka price batao", 0.85},
		{"action bonus", withAction, "mujhe Nexon ka price batao", 0.95},
		{"confused", plain, "samajh nahi aaya", 0.65},
		{"confused with action", withAction, "Samajh Nahi aaya", 0.75},
		{"question mark counts as confused", plain, "kitne ka hai?", 0.65},
		{"marathi confused", plain, "parat sanga", 0.65},
		{"nil reply", nil, "", 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confidence(lex, tt.reply, tt.utterance); !approx(got, tt.want) {
				t.Errorf("Confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidenceConfusedPenaltyIsRelative(t *testing.T) {
	lex := DefaultLexicon()
	reply := &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "1"}}}
	base := Confidence(lex, reply, "mujhe Nexon ka price batao")
	confused := Confidence(lex, reply, "mujhe Nexon ka price batao, samajh nahi")
	if !approx(base-confused, 0.2) {
		t.Errorf("penalty = %v, want 0.2", base-confused)
	}
}

func TestConfidenceClamps(t *testing.T) {
	low := &Lexicon{Baseline: 0.3, ConfusionPenalty: 5, Confused: []string{"huh"}}
	if got := Confidence(low, nil, "huh"); got != MinConfidence {
		t.Errorf("low clamp = %v", got)
	}
	high := &Lexicon{Baseline: 1.0, ActionBonus: 5}
	if got := Confidence(high, &llm.ChatResponse{ToolCalls: []llm.ToolCall{{}}}, ""); got != MaxConfidence {
		t.Errorf("high clamp = %v", got)
	}
}

func TestSentiment(t *testing.T) {
	lex := DefaultLexicon()
	tests := []struct {
		utterance string
		want      float64
	}{
		{"", 0},
		{"mujhe Nexon ka price batao", 0},
		{"car mein problem hai", -0.5},
		{"bahut bura service, worst experience, I am angry", -1.0},
		{"great, thanks", 1.0},
		{"GOOD", 0.5},
		{"good but there is a problem", 0},
		{"mast, chhan, khush, uttam", 1.0},
		{"problem issue thanks", -1.0},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			if got := Sentiment(lex, tt.utterance); !approx(got, tt.want) {
				t.Errorf("Sentiment(%q) = %v, want %v", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestScoresStayInRange(t *testing.T) {
	lex := DefaultLexicon()
	inputs := []string{
		"", "?", "???", "huh what kya?", "problem issue kharab bura complaint angry upset",
		"good great thanks best happy excellent", "\x00\xff", "नमस्ते", "samajh nahi, phir se, worst",
	}
	replies := []*llm.ChatResponse{nil, {}, {ToolCalls: []llm.ToolCall{{}, {}}}}
	for _, in := range inputs {
		for _, r := range replies {
			c := Confidence(lex, r, in)
			if c < MinConfidence || c > MaxConfidence {
				t.Errorf("Confidence(%q) = %v out of range", in, c)
			}
		}
		s := Sentiment(lex, in)
		if s < MinSentiment || s > MaxSentiment {
			t.Errorf("Sentiment(%q) = %v out of range", in, s)
		}
	}
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := "baseline: 0.9\nnegative: [\"Problem\", \"problem\", \" dukh \"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon: %v", err)
	}
	if lex.Baseline != 0.9 {
		t.Errorf("baseline = %v", lex.Baseline)
	}
	if len(lex.Negative) != 2 || lex.Negative[0] != "problem" || lex.Negative[1] != "dukh" {
		t.Errorf("negative = %v, want deduped lowercase", lex.Negative)
	}
	if got := Sentiment(lex, "gaadi mein problem hai"); !approx(got, -0.5) {
		t.Errorf("duplicated keyword counted twice: sentiment = %v, want -0.5", got)
	}
	if len(lex.Positive) != len(DefaultLexicon().Positive) {
		t.Errorf("positive should keep defaults, got %v", lex.Positive)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("baseline: 2.0\n"), 0o644)
	if _, err := LoadLexicon(bad); err == nil {
		t.Error("expected error for out-of-range baseline")
	}
	if _, err := LoadLexicon(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEstimatorReloadKeepsPreviousOnError(t *testing.T) {
	e := NewEstimator(nil, nil)
	path := filepath.Join(t.TempDir(), "lex.yaml")
	_ = os.WriteFile(path, []byte("baseline: [oops\n"), 0o644)

	if err := e.Reload(path); err == nil {
		t.Fatal("expected reload error")
	}
	if e.Lexicon().Baseline != 0.85 {
		t.Errorf("baseline = %v, want default kept", e.Lexicon().Baseline)
	}
}

func TestEstimatorWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(path, []byte("baseline: 0.85\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEstimator(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx, path) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("baseline: 0.7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.Lexicon().Baseline == 0.7 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("baseline = %v after write, want 0.7", e.Lexicon().Baseline)
}
