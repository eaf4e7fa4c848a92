package heuristics

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the tunable inputs of the turn heuristics.
type Lexicon struct {
	Baseline         float64  `yaml:"baseline"`
	ConfusionPenalty float64  `yaml:"confusion_penalty"`
	ActionBonus      float64  `yaml:"action_bonus"`
	Confused         []string `yaml:"confused"`
	Negative         []string `yaml:"negative"`
	Positive         []string `yaml:"positive"`
}

// DefaultLexicon returns the built-in Hindi/Marathi/English lexicon.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Baseline:         0.85,
		ConfusionPenalty: 0.2,
		ActionBonus:      0.1,
		Confused: []string{
			"kya?", "samajh nahi", "phir se", "?", "huh", "what",
			"kay?", "samajla nahi", "parat sanga", "nahi kalala",
		},
		Negative: []string{
			"problem", "issue", "kharab", "bura", "complaint", "angry", "upset",
			"galat", "bekaar", "worst", "vait", "trasadi", "naraz", "dukh",
		},
		Positive: []string{
			"good", "great", "thanks", "dhanyavaad", "achha", "best", "happy",
			"excellent", "mast", "chhan", "khush", "uttam", "sundar", "barober",
		},
	}
}

// LoadLexicon reads a YAML lexicon from path. Fields omitted from the file
// keep their default values.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	lex := DefaultLexicon()
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	if err := lex.normalize(); err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// normalize lowercases and dedupes keyword sets and checks numeric ranges.
func (l *Lexicon) normalize() error {
	if l.Baseline < MinConfidence || l.Baseline > MaxConfidence {
		return fmt.Errorf("baseline %.2f outside [%.1f, %.1f]", l.Baseline, MinConfidence, MaxConfidence)
	}
	if l.ConfusionPenalty < 0 || l.ActionBonus < 0 {
		return fmt.Errorf("penalty and bonus must be non-negative")
	}
	l.Confused = dedupe(l.Confused)
	l.Negative = dedupe(l.Negative)
	l.Positive = dedupe(l.Positive)
	return nil
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
