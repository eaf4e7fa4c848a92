package callcenter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szaher/dealerline/internal/actions"
	"github.com/szaher/dealerline/internal/agent"
	"github.com/szaher/dealerline/internal/conversation"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/finalizer"
	"github.com/szaher/dealerline/internal/heuristics"
	"github.com/szaher/dealerline/internal/llm"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/storage"
	"github.com/szaher/dealerline/internal/testutil"
)

// failingLog fails appends while fail is set.
type failingLog struct {
	storage.CallLog
	fail bool
}

func (f *failingLog) AppendCallLog(ctx context.Context, row storage.CallLogRow) error {
	if f.fail {
		return errors.New("call log unavailable")
	}
	return f.CallLog.AppendCallLog(ctx, row)
}

type env struct {
	center      *Center
	mock        *llm.MockClient
	convs       *conversation.Store
	events      *events.CollectorEmitter
	transcripts *storage.LocalTranscripts
	log         *failingLog
	clock       *testutil.Clock
}

func newEnv(t *testing.T, responses ...llm.MockResponse) *env {
	t.Helper()
	dir := t.TempDir()
	clk := testutil.NewClock(time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC))
	store := testutil.SeededCRM(t, clk.Now)

	transcripts, err := storage.NewLocalTranscripts(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	jsonl, err := storage.NewJSONLCallLog(filepath.Join(dir, "call_logs.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	log := &failingLog{CallLog: jsonl}

	sessions := session.NewRegistry(finalizer.New(transcripts, log, nil), session.WithClock(clk.Now))
	convs := conversation.New(agent.DefaultPriming())
	registry, err := actions.NewDealershipRegistry(store, clk.Now)
	if err != nil {
		t.Fatal(err)
	}
	mock := llm.NewMockClient(responses...)
	orch := agent.New(mock, registry, convs, sessions, heuristics.NewEstimator(nil, nil), agent.Config{PhaseTimeout: time.Second})

	collector := &events.CollectorEmitter{}
	center := New(sessions, convs, orch,
		WithEmitter(collector),
		WithPicker(func(int) int { return 0 }),
		WithHistory(log, transcripts),
		WithClock(clk.Now),
	)
	return &env{center: center, mock: mock, convs: convs, events: collector, transcripts: transcripts, log: log, clock: clk}
}

func TestStartSessionGreets(t *testing.T) {
	e := newEnv(t)
	s, err := e.center.StartSession("+91 90000 00001", "", "", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s.Status != session.StatusActive || s.HandledBy != session.HandledByAI || s.Direction != session.Inbound {
		t.Errorf("session = %+v", s)
	}
	if s.Type != "inquiry" || s.CustomerName != "Unknown" {
		t.Errorf("defaults = %q %q", s.Type, s.CustomerName)
	}
	if len(s.Transcript) != 1 || s.Transcript[0].Role != session.RoleAssistant || s.Transcript[0].Content != DefaultGreetings[0] {
		t.Errorf("transcript = %+v", s.Transcript)
	}
	if !e.convs.Has(s.ID) {
		t.Error("conversation not created")
	}
	if types := e.events.Types(); len(types) != 1 || types[0] != events.CallStarted {
		t.Errorf("events = %v", types)
	}

	if _, err := e.center.StartSession("  ", "", "", ""); err == nil {
		t.Error("blank phone should be rejected")
	}
	if _, err := e.center.StartSession("+91 1", "sideways", "", ""); err == nil {
		t.Error("bad direction should be rejected")
	}
}

func TestNexonScenario(t *testing.T) {
	e := newEnv(t,
		llm.MockResponse{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{{
			ID: "call_1", Name: "get_vehicle_info", Input: map[string]interface{}{"model_name": "Nexon"},
		}}},
		llm.MockResponse{Content: "Nexon 8 lakh se start hoti hai ji, test drive book karein?"},
	)
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "inquiry", "Rajesh")

	out, err := e.center.SubmitUtterance(context.Background(), s.ID, "mujhe Nexon ka price batao")
	if err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}
	if !strings.Contains(out.Reply, "Nexon") {
		t.Errorf("reply = %q", out.Reply)
	}
	if len(out.Actions) != 1 || out.Actions[0].Name != "get_vehicle_info" || out.Actions[0].Arguments["model_name"] != "Nexon" {
		t.Fatalf("actions = %+v", out.Actions)
	}
	if !out.Actions[0].Result.Success() {
		t.Errorf("lookup against seeded catalog failed: %v", out.Actions[0].Result)
	}
	if out.Confidence < 0.3 {
		t.Errorf("confidence = %v", out.Confidence)
	}

	got := e.center.GetSession(s.ID)
	if len(got.Transcript) != 3 {
		t.Fatalf("transcript = %+v", got.Transcript)
	}
	if got.Transcript[1].Role != session.RoleUser || got.Transcript[2].Role != session.RoleAssistant {
		t.Errorf("transcript roles = %+v", got.Transcript)
	}
	if got.Context.ModelDiscussed != "Nexon" {
		t.Errorf("model discussed = %q", got.Context.ModelDiscussed)
	}
}

func TestTakeoverScenario(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "unused"})
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "complaint", "Rajesh")

	if !e.center.RequestTakeover(s.ID, "customer angry") {
		t.Fatal("RequestTakeover returned false")
	}
	got := e.center.GetSession(s.ID)
	if got.Status != session.StatusTakeover || got.HandledBy != session.HandledByAIThenHuman || got.TakeoverReason != "customer angry" {
		t.Errorf("session = %+v", got)
	}
	if last := got.Transcript[len(got.Transcript)-1]; last.Content != agent.DefaultHandoffReply {
		t.Errorf("handoff line = %+v", last)
	}

	if _, err := e.center.SubmitUtterance(context.Background(), s.ID, "hello?"); !errors.Is(err, ErrTakeoverActive) {
		t.Errorf("turn during takeover err = %v", err)
	}
	if n := len(e.mock.Calls()); n != 0 {
		t.Errorf("model called %d times during takeover", n)
	}

	entry, err := e.center.PostHumanMessage(s.ID, "Namaste, main Amit bol raha hoon")
	if err != nil || entry == nil || entry.Role != session.RoleHumanAgent {
		t.Fatalf("PostHumanMessage = %+v, %v", entry, err)
	}
	if rec, err := e.center.EndSession(context.Background(), s.ID, "resolved"); err != nil || rec == nil {
		t.Fatalf("EndSession = %v, %v", rec, err)
	}
}

func TestEndSessionRecordsAndIsIdempotent(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "Ji, bilkul."})
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "inquiry", "Rajesh")

	e.clock.Advance(42 * time.Second)
	if _, err := e.center.SubmitUtterance(context.Background(), s.ID, "service book karni hai"); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(1500 * time.Millisecond)

	rec, err := e.center.EndSession(context.Background(), s.ID, "resolved")
	if err != nil || rec == nil {
		t.Fatalf("EndSession = %v, %v", rec, err)
	}
	if rec.DurationSeconds != 43 {
		t.Errorf("duration = %d, want 43", rec.DurationSeconds)
	}

	text, ok, err := e.center.Transcript(context.Background(), s.ID)
	if err != nil || !ok {
		t.Fatalf("Transcript = %v, %v", ok, err)
	}
	body := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "[") {
			body++
		}
	}
	if body != 3 {
		t.Errorf("transcript has %d body lines, want 3:\n%s", body, text)
	}
	if !strings.Contains(text, "Duration: 43 seconds") || !strings.Contains(text, "Outcome: resolved") {
		t.Errorf("transcript header:\n%s", text)
	}

	row, err := e.center.CallLog(context.Background(), s.ID)
	if err != nil || row == nil || row.DurationSeconds != 43 {
		t.Fatalf("CallLog = %+v, %v", row, err)
	}

	again, err := e.center.EndSession(context.Background(), s.ID, "resolved")
	if again != nil || err != nil {
		t.Errorf("second EndSession = %v, %v", again, err)
	}
	if len(e.center.ListActiveSessions()) != 0 {
		t.Error("session still listed after end")
	}
	if e.convs.Has(s.ID) {
		t.Error("conversation not cleared")
	}

	for _, op := range []func() bool{
		func() bool { return e.center.RequestTakeover(s.ID, "late") },
		func() bool { entry, _ := e.center.PostHumanMessage(s.ID, "late"); return entry != nil },
		func() bool { return e.center.GetSession(s.ID) != nil },
	} {
		if op() {
			t.Error("operation on ended call should be a no-op")
		}
	}
	if _, err := e.center.SubmitUtterance(context.Background(), s.ID, "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("turn on ended call err = %v", err)
	}
}

func TestEndSessionPersistenceFailureKeepsCall(t *testing.T) {
	e := newEnv(t)
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "inquiry", "Rajesh")

	e.log.fail = true
	if _, err := e.center.EndSession(context.Background(), s.ID, "resolved"); err == nil {
		t.Fatal("expected persistence error")
	}
	if e.center.GetSession(s.ID) == nil {
		t.Fatal("call evicted despite failed write")
	}
	if !e.convs.Has(s.ID) {
		t.Error("conversation cleared despite failed end")
	}

	e.log.fail = false
	if rec, err := e.center.EndSession(context.Background(), s.ID, "resolved"); err != nil || rec == nil {
		t.Fatalf("retry = %v, %v", rec, err)
	}
}

func TestDegradedTurnKeepsCallActive(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Error: errors.New("upstream 503")})
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "inquiry", "Rajesh")

	out, err := e.center.SubmitUtterance(context.Background(), s.ID, "hello")
	if err != nil {
		t.Fatalf("degraded turn must not fail the call: %v", err)
	}
	if !out.Degraded || out.Reply != agent.DefaultFallbackReply {
		t.Errorf("outcome = %+v", out)
	}
	got := e.center.GetSession(s.ID)
	if got.Status != session.StatusActive {
		t.Errorf("status = %s", got.Status)
	}
	if last := got.Transcript[len(got.Transcript)-1]; last.Content != agent.DefaultFallbackReply {
		t.Errorf("fallback not in transcript: %+v", last)
	}
}

func TestStats(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "ok"})
	a, _ := e.center.StartSession("+91 1", session.Inbound, "", "")
	b, _ := e.center.StartSession("+91 2", session.Outbound, "", "")
	if _, err := e.center.StartSession("+91 3", session.Inbound, "", ""); err != nil {
		t.Fatal(err)
	}

	e.clock.Advance(10 * time.Second)
	e.center.RequestTakeover(b.ID, "manual")
	if _, err := e.center.EndSession(context.Background(), a.ID, ""); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(20 * time.Second)
	if _, err := e.center.EndSession(context.Background(), b.ID, ""); err != nil {
		t.Fatal(err)
	}

	st, err := e.center.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{TotalCalls: 2, TodayCalls: 2, ActiveCalls: 1, AIHandled: 1, HumanTakeover: 1, AvgDuration: 20}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	rows, err := e.center.CallLogs(context.Background(), 0)
	if err != nil || len(rows) != 2 || rows[0].CallID != b.ID {
		t.Errorf("CallLogs = %+v, %v", rows, err)
	}
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	e := newEnv(t, llm.MockResponse{Content: "Haan ji"})
	s, _ := e.center.StartSession("+91 90000 00001", session.Inbound, "inquiry", "Rajesh")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.center.SubmitUtterance(context.Background(), s.ID, "hello"); err != nil {
				t.Errorf("SubmitUtterance: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs := e.convs.GetOrCreate(s.ID)
	if len(msgs) != 11 {
		t.Fatalf("conversation has %d messages, want 11", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		want := llm.RoleUser
		if i%2 == 0 {
			want = llm.RoleAssistant
		}
		if msgs[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, want)
		}
	}
}
