// Package escalation decides, from per-turn signals, whether a call should be
// handed to a human agent. Rules are expressions compiled once at startup.
package escalation

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule is one escalation rule as written in configuration.
type Rule struct {
	Name   string `yaml:"name" json:"name"`
	When   string `yaml:"when" json:"when"`
	Reason string `yaml:"reason" json:"reason"`
}

// Signals are the variables visible to rule expressions.
type Signals struct {
	Confidence float64  `expr:"confidence"`
	Sentiment  float64  `expr:"sentiment"`
	Turn       int      `expr:"turn"`
	Utterance  string   `expr:"utterance"`
	Actions    []string `expr:"actions"`
}

// Decision is the first rule that matched.
type Decision struct {
	Rule   string
	Reason string
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// Policy evaluates rules in order. A nil or empty Policy never escalates.
type Policy struct {
	rules []compiledRule
}

// NewPolicy compiles rules against the Signals shape. Each rule must
// evaluate to a bool.
func NewPolicy(rules []Rule) (*Policy, error) {
	p := &Policy{}
	for i, r := range rules {
		if strings.TrimSpace(r.When) == "" {
			return nil, fmt.Errorf("escalation rule %d (%s): empty expression", i, r.Name)
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if r.Reason == "" {
			r.Reason = r.Name
		}
		program, err := expr.Compile(r.When, expr.Env(Signals{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("escalation rule %s: %w", r.Name, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, program: program})
	}
	return p, nil
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Evaluate returns the first matching rule. The utterance is lowercased
// before evaluation so rules can match keywords without case handling.
func (p *Policy) Evaluate(sig Signals) (Decision, bool, error) {
	if p == nil {
		return Decision{}, false, nil
	}
	sig.Utterance = strings.ToLower(sig.Utterance)
	if sig.Actions == nil {
		sig.Actions = []string{}
	}
	for _, r := range p.rules {
		out, err := expr.Run(r.program, sig)
		if err != nil {
			return Decision{}, false, fmt.Errorf("escalation rule %s: %w", r.Name, err)
		}
		if matched, _ := out.(bool); matched {
			return Decision{Rule: r.Name, Reason: r.Reason}, true, nil
		}
	}
	return Decision{}, false, nil
}
