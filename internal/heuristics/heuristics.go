// Package heuristics scores a conversational turn: a confidence estimate for
// the agent's handling and a sentiment estimate for the caller's utterance.
// Both are advisory keyword signals, not classifiers.
package heuristics

import (
	"strings"

	"github.com/szaher/dealerline/internal/llm"
)

// Score bounds.
const (
	MinConfidence = 0.3
	MaxConfidence = 1.0
	MinSentiment  = -1.0
	MaxSentiment  = 1.0
)

// Confidence estimates how well the agent is handling the turn. It starts at
// the lexicon baseline, loses ConfusionPenalty when the utterance contains a
// confused phrase, gains ActionBonus when reply requested at least one action,
// and is clamped to [MinConfidence, MaxConfidence].
func Confidence(lex *Lexicon, reply *llm.ChatResponse, utterance string) float64 {
	score := lex.Baseline
	if containsAny(strings.ToLower(utterance), lex.Confused) {
		score -= lex.ConfusionPenalty
	}
	if reply != nil && len(reply.ToolCalls) > 0 {
		score += lex.ActionBonus
	}
	return clamp(score, MinConfidence, MaxConfidence)
}

// Sentiment scores utterance in [-1, 1] by counting negative and positive
// keywords. Keyword sets hold each word once, so a word counts at most once.
// The dominant polarity wins with 0.5 per keyword, capped at two.
func Sentiment(lex *Lexicon, utterance string) float64 {
	text := strings.ToLower(utterance)
	neg := countAny(text, lex.Negative)
	pos := countAny(text, lex.Positive)

	switch {
	case neg > pos:
		return clamp(-0.5*float64(min(neg, 2)), MinSentiment, MaxSentiment)
	case pos > neg:
		return clamp(0.5*float64(min(pos, 2)), MinSentiment, MaxSentiment)
	default:
		return 0.0
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// countAny counts how many keywords occur in text (each keyword once).
func countAny(text string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
