package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/szaher/dealerline/internal/actions"
	"github.com/szaher/dealerline/internal/agent"
	"github.com/szaher/dealerline/internal/auth"
	"github.com/szaher/dealerline/internal/callcenter"
	"github.com/szaher/dealerline/internal/conversation"
	"github.com/szaher/dealerline/internal/crm"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/finalizer"
	"github.com/szaher/dealerline/internal/heuristics"
	"github.com/szaher/dealerline/internal/llm"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/storage"
	"github.com/szaher/dealerline/internal/telemetry"
	"github.com/szaher/dealerline/internal/testutil"
)

const testKey = "test-api-key"

type flakyLog struct {
	storage.CallLog
	fail bool
}

func (f *flakyLog) AppendCallLog(ctx context.Context, row storage.CallLogRow) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.CallLog.AppendCallLog(ctx, row)
}

type testEnv struct {
	ts    *httptest.Server
	store *crm.Store
	log   *flakyLog
}

func newTestEnv(t *testing.T, responses ...llm.MockResponse) *testEnv {
	t.Helper()
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC) }

	store := testutil.SeededCRM(t, now)

	transcripts, err := storage.NewLocalTranscripts(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	jsonl, err := storage.NewJSONLCallLog(filepath.Join(dir, "call_logs.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	log := &flakyLog{CallLog: jsonl}

	sessions := session.NewRegistry(finalizer.New(transcripts, log, nil))
	convs := conversation.New(agent.DefaultPriming())
	registry, err := actions.NewDealershipRegistry(store, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) == 0 {
		responses = []llm.MockResponse{{Content: "Ji bilkul, Nexon ka price 8 lakh se shuru hota hai.", StopReason: llm.StopEndTurn}}
	}
	orch := agent.New(llm.NewMockClient(responses...), registry, convs, sessions,
		heuristics.NewEstimator(nil, nil), agent.Config{PhaseTimeout: time.Second})

	hub := events.NewHub()
	metrics := telemetry.NewMetrics()
	center := callcenter.New(sessions, convs, orch,
		callcenter.WithEmitter(hub),
		callcenter.WithMetrics(metrics),
		callcenter.WithPicker(func(int) int { return 0 }),
		callcenter.WithHistory(log, transcripts),
	)
	srv := New(center,
		WithAPIKey(testKey),
		WithCRM(store),
		WithHub(hub, time.Second),
		WithMetrics(metrics),
		WithRateLimit(auth.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}),
		WithClock(now),
		WithVersion("test"),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, log: log}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return v
}

func (e *testEnv) startCall(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/calls", `{"phone":"+91 90000 00001","customer_name":"Rahul"}`)
	if code != http.StatusCreated {
		t.Fatalf("start: %d %s", code, body)
	}
	s := decodeBody[session.Session](t, body)
	if s.ID == "" || s.CustomerName != "Rahul" || len(s.Transcript) != 1 {
		t.Fatalf("session = %+v", s)
	}
	return s.ID
}

func TestHealthzAndAuth(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	resp, err = http.Get(e.ts.URL + "/api/calls/active")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d", resp.StatusCode)
	}
	errBody := decodeBody[map[string]string](t, body)
	if errBody["error"] == "" || errBody["message"] == "" {
		t.Errorf("error body = %v", errBody)
	}

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/calls/active", nil)
	req.Header.Set(auth.HeaderAPIKey, testKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("x-api-key = %d", resp.StatusCode)
	}
}

func TestCallLifecycle(t *testing.T) {
	e := newTestEnv(t)
	id := e.startCall(t)

	code, body := e.do(t, http.MethodGet, "/api/calls/active", "")
	if code != http.StatusOK || decodeBody[struct{ Count int }](t, body).Count != 1 {
		t.Fatalf("active = %d %s", code, body)
	}

	code, body = e.do(t, http.MethodPost, "/api/calls/"+id+"/messages", `{"message":"mujhe Nexon ka price batao"}`)
	if code != http.StatusOK {
		t.Fatalf("message = %d %s", code, body)
	}
	turn := decodeBody[map[string]interface{}](t, body)
	if !strings.Contains(turn["response"].(string), "Nexon") {
		t.Errorf("turn = %v", turn)
	}
	if c := turn["confidence"].(float64); c < 0.3 || c > 1 {
		t.Errorf("confidence = %v", c)
	}

	code, _ = e.do(t, http.MethodPost, "/api/calls/"+id+"/takeover", `{"reason":"customer angry"}`)
	if code != http.StatusOK {
		t.Fatalf("takeover = %d", code)
	}
	code, body = e.do(t, http.MethodGet, "/api/calls/active/"+id, "")
	s := decodeBody[session.Session](t, body)
	if code != http.StatusOK || s.Status != session.StatusTakeover || s.HandledBy != session.HandledByAIThenHuman {
		t.Fatalf("after takeover = %d %+v", code, s)
	}

	code, _ = e.do(t, http.MethodPost, "/api/calls/"+id+"/messages", `{"message":"hello?"}`)
	if code != http.StatusConflict {
		t.Errorf("message during takeover = %d, want 409", code)
	}

	code, body = e.do(t, http.MethodPost, "/api/calls/"+id+"/human-messages", `{"message":"Sir, main Amit bol raha hoon"}`)
	if code != http.StatusCreated || decodeBody[session.Entry](t, body).Role != session.RoleHumanAgent {
		t.Fatalf("human message = %d %s", code, body)
	}

	code, body = e.do(t, http.MethodPost, "/api/calls/"+id+"/end", `{"outcome":"escalated"}`)
	if code != http.StatusOK {
		t.Fatalf("end = %d %s", code, body)
	}
	rec := decodeBody[session.Record](t, body)
	if rec.Outcome != "escalated" || rec.Status != session.StatusEnded {
		t.Errorf("record = %+v", rec)
	}

	code, _ = e.do(t, http.MethodPost, "/api/calls/"+id+"/end", "")
	if code != http.StatusNotFound {
		t.Errorf("second end = %d, want 404", code)
	}
	code, _ = e.do(t, http.MethodPost, "/api/calls/"+id+"/messages", `{"message":"hi"}`)
	if code != http.StatusNotFound {
		t.Errorf("message after end = %d, want 404", code)
	}

	code, body = e.do(t, http.MethodGet, "/api/calls/logs", "")
	if code != http.StatusOK || decodeBody[struct{ Count int }](t, body).Count != 1 {
		t.Fatalf("logs = %d %s", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/api/calls/logs/"+id, "")
	row := decodeBody[storage.CallLogRow](t, body)
	if code != http.StatusOK || row.HandledBy != "ai_then_human" || row.TakeoverReason != "customer angry" {
		t.Errorf("log = %d %+v", code, row)
	}
	code, body = e.do(t, http.MethodGet, "/api/calls/transcripts/"+id, "")
	if code != http.StatusOK || !strings.Contains(string(body), "Call ID: "+id) || !strings.Contains(string(body), "Agent: Sir, main Amit") {
		t.Errorf("transcript = %d %s", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/api/calls/stats", "")
	st := decodeBody[callcenter.Stats](t, body)
	if code != http.StatusOK || st.TotalCalls != 1 || st.HumanTakeover != 1 || st.ActiveCalls != 0 {
		t.Errorf("stats = %d %+v", code, st)
	}
}

func TestCallErrors(t *testing.T) {
	e := newTestEnv(t)
	id := e.startCall(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing phone", http.MethodPost, "/api/calls", `{}`, http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/api/calls", `{"phone":"1","direction":"up"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/calls", `{"phone":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/calls/" + id + "/messages", `{"text":"hi"}`, http.StatusBadRequest},
		{"empty message", http.MethodPost, "/api/calls/" + id + "/messages", `{"message":"  "}`, http.StatusBadRequest},
		{"unknown call message", http.MethodPost, "/api/calls/CALL-NOPE/messages", `{"message":"hi"}`, http.StatusNotFound},
		{"unknown call takeover", http.MethodPost, "/api/calls/CALL-NOPE/takeover", "", http.StatusNotFound},
		{"unknown call human message", http.MethodPost, "/api/calls/CALL-NOPE/human-messages", `{"message":"hi"}`, http.StatusNotFound},
		{"unknown active call", http.MethodGet, "/api/calls/active/CALL-NOPE", "", http.StatusNotFound},
		{"unknown log", http.MethodGet, "/api/calls/logs/CALL-NOPE", "", http.StatusNotFound},
		{"unknown transcript", http.MethodGet, "/api/calls/transcripts/CALL-NOPE", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/calls/logs?limit=x", "", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, body := e.do(t, tc.method, tc.path, tc.body); code != tc.want {
				t.Errorf("status = %d, want %d (%s)", code, tc.want, body)
			}
		})
	}
}

func TestEndCallPersistenceFailure(t *testing.T) {
	e := newTestEnv(t)
	id := e.startCall(t)

	e.log.fail = true
	code, body := e.do(t, http.MethodPost, "/api/calls/"+id+"/end", "")
	if code != http.StatusInternalServerError {
		t.Fatalf("end = %d %s", code, body)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/calls/active/"+id, ""); code != http.StatusOK {
		t.Fatalf("call must stay active, got %d", code)
	}

	e.log.fail = false
	if code, body := e.do(t, http.MethodPost, "/api/calls/"+id+"/end", ""); code != http.StatusOK {
		t.Fatalf("retry end = %d %s", code, body)
	}
}

func TestDegradedTurnStillAnswers(t *testing.T) {
	e := newTestEnv(t, llm.MockResponse{Error: errors.New("rate limited")})
	id := e.startCall(t)

	code, body := e.do(t, http.MethodPost, "/api/calls/"+id+"/messages", `{"message":"price?"}`)
	if code != http.StatusOK {
		t.Fatalf("message = %d %s", code, body)
	}
	turn := decodeBody[map[string]interface{}](t, body)
	if turn["degraded"] != true || turn["response"] != agent.DefaultFallbackReply || turn["confidence"] != 0.5 {
		t.Errorf("turn = %v", turn)
	}
}

func TestCRMRoutes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	code, body := e.do(t, http.MethodGet, "/api/vehicles?q=nexon", "")
	vehicles := decodeBody[struct{ Vehicles []crm.Vehicle }](t, body).Vehicles
	if code != http.StatusOK || len(vehicles) == 0 {
		t.Fatalf("vehicles = %d %s", code, body)
	}
	for _, v := range vehicles {
		if !strings.Contains(strings.ToLower(v.Model), "nexon") {
			t.Errorf("unexpected vehicle %q", v.Model)
		}
	}

	code, body = e.do(t, http.MethodGet, "/api/appointments/slots", "")
	slots := decodeBody[struct {
		Date           string
		AvailableSlots []string `json:"available_slots"`
	}](t, body)
	if code != http.StatusOK || slots.Date != "2026-02-11" || len(slots.AvailableSlots) != len(crm.TimeSlots) {
		t.Errorf("slots = %d %+v", code, slots)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/appointments/slots?date=tomorrow", ""); code != http.StatusBadRequest {
		t.Errorf("bad date = %d", code)
	}

	code, body = e.do(t, http.MethodPost, "/api/leads", `{"name":"Sunita","phone":"+91 98000 11111","interested_model":"Harrier"}`)
	lead := decodeBody[crm.Lead](t, body)
	if code != http.StatusCreated || lead.Stage != "new" || lead.Source != "walk_in" {
		t.Errorf("lead = %d %+v", code, lead)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/leads", `{"name":"x"}`); code != http.StatusBadRequest {
		t.Errorf("lead without phone = %d", code)
	}

	c, err := e.store.RegisterComplaint(ctx, crm.Complaint{
		CustomerName: "Rahul", CustomerPhone: "+91 90000 00001",
		Category: "billing_issue", Description: "charged twice",
	})
	if err != nil {
		t.Fatal(err)
	}
	code, body = e.do(t, http.MethodPatch, "/api/complaints/"+c.ID+"/status", `{"status":"resolved"}`)
	updated := decodeBody[crm.Complaint](t, body)
	if code != http.StatusOK || updated.Status != crm.ComplaintResolved || updated.ResolvedAt == nil {
		t.Errorf("complaint = %d %+v", code, updated)
	}
	if code, _ := e.do(t, http.MethodPatch, "/api/complaints/"+c.ID+"/status", `{"status":"lost"}`); code != http.StatusBadRequest {
		t.Errorf("bad status = %d", code)
	}
	if code, _ := e.do(t, http.MethodPatch, "/api/complaints/COMP-NOPE/status", `{"status":"closed"}`); code != http.StatusNotFound {
		t.Errorf("unknown complaint = %d", code)
	}

	code, body = e.do(t, http.MethodGet, "/api/dashboard/stats", "")
	dash := decodeBody[struct {
		Calls              callcenter.Stats
		ComplaintsByStatus map[string]int64 `json:"complaints_by_status"`
		LeadsByStage       map[string]int64 `json:"leads_by_stage"`
	}](t, body)
	if code != http.StatusOK || dash.ComplaintsByStatus["resolved"] != 1 || dash.LeadsByStage["new"] < 1 {
		t.Errorf("dashboard = %d %s", code, body)
	}

	for _, path := range []string{"/api/vehicles", "/api/vehicles/offers?model=Nexon", "/api/customers", "/api/leads?stage=new", "/api/appointments", "/api/complaints"} {
		if code, body := e.do(t, http.MethodGet, path, ""); code != http.StatusOK {
			t.Errorf("GET %s = %d %s", path, code, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.startCall(t)

	resp, err := http.Get(e.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "dealerline_calls_started_total") {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, e.ts.URL+"/api/calls/events", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	buf := make([]byte, 256)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("reading preamble: %v", err)
	}

	id := e.startCall(t)
	var got strings.Builder
	for !strings.Contains(got.String(), id) {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("stream ended before call.started: %v (%q)", err, got.String())
		}
		got.Write(buf[:n])
	}
	if !strings.Contains(got.String(), "event: call.started") {
		t.Errorf("stream = %q", got.String())
	}
}
