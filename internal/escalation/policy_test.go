package escalation

import "testing"

func TestNewPolicyRejects(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "empty", rule: Rule{Name: "x", When: "  "}},
		{name: "syntax", rule: Rule{Name: "x", When: "confidence <"}},
		{name: "unknown variable", rule: Rule{Name: "x", When: "mood < 0"}},
		{name: "not bool", rule: Rule{Name: "x", When: "confidence + 1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPolicy([]Rule{tc.rule}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	p, err := NewPolicy([]Rule{
		{Name: "angry", When: "sentiment <= -1.0", Reason: "customer angry"},
		{Name: "lost", When: "confidence < 0.5 && turn >= 3", Reason: "ai not confident"},
		{Name: "manager", When: `utterance contains "manager"`},
		{Name: "complaint", When: `"register_complaint" in actions && sentiment < 0`, Reason: "complaint with negative sentiment"},
	})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("Len = %d", p.Len())
	}

	tests := []struct {
		name       string
		sig        Signals
		wantMatch  bool
		wantRule   string
		wantReason string
	}{
		{name: "calm", sig: Signals{Confidence: 0.85, Turn: 1, Utterance: "Nexon price?"}},
		{name: "angry", sig: Signals{Confidence: 0.85, Sentiment: -1}, wantMatch: true, wantRule: "angry", wantReason: "customer angry"},
		{name: "low confidence early", sig: Signals{Confidence: 0.4, Turn: 2}},
		{name: "low confidence late", sig: Signals{Confidence: 0.4, Turn: 3}, wantMatch: true, wantRule: "lost", wantReason: "ai not confident"},
		{name: "case folded", sig: Signals{Confidence: 1, Utterance: "Give me your MANAGER"}, wantMatch: true, wantRule: "manager", wantReason: "manager"},
		{name: "action signal", sig: Signals{Confidence: 1, Sentiment: -0.5, Actions: []string{"register_complaint"}}, wantMatch: true, wantRule: "complaint", wantReason: "complaint with negative sentiment"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, ok, err := p.Evaluate(tc.sig)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ok != tc.wantMatch {
				t.Fatalf("matched = %v, want %v", ok, tc.wantMatch)
			}
			if d.Rule != tc.wantRule || d.Reason != tc.wantReason {
				t.Errorf("decision = %+v", d)
			}
		})
	}
}

func TestNilPolicyNeverEscalates(t *testing.T) {
	var p *Policy
	if _, ok, err := p.Evaluate(Signals{Sentiment: -1}); ok || err != nil {
		t.Errorf("nil policy = %v, %v", ok, err)
	}
	empty, err := NewPolicy(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := empty.Evaluate(Signals{Sentiment: -1}); ok {
		t.Error("empty policy escalated")
	}
}
