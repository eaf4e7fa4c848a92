package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestEventJSON(t *testing.T) {
	ev := New(CallTurn, "CALL-1").WithData("confidence", 0.85).WithData("reply", "hi")
	data, err := ev.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "call.turn" || got["call_id"] != "CALL-1" {
		t.Errorf("event = %v", got)
	}
	if d := got["data"].(map[string]interface{}); d["reply"] != "hi" {
		t.Errorf("data = %v", d)
	}
}

func TestMultiAndCollector(t *testing.T) {
	a, b := &CollectorEmitter{}, &CollectorEmitter{}
	m := Multi{a, nil, b, NoopEmitter{}}
	m.Emit(New(CallStarted, "CALL-1"))
	m.Emit(New(CallEnded, "CALL-1"))

	for _, c := range []*CollectorEmitter{a, b} {
		types := c.Types()
		if len(types) != 2 || types[0] != CallStarted || types[1] != CallEnded {
			t.Errorf("types = %v", types)
		}
	}
}

func TestHubSubscribeAndDrop(t *testing.T) {
	h := NewHub()
	fast, cancelFast := h.Subscribe(4)
	_, cancelSlow := h.Subscribe(1)
	defer cancelSlow()

	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}
	h.Emit(New(CallStarted, "CALL-1"))
	h.Emit(New(CallMessage, "CALL-1"))

	if ev := <-fast; ev.Type != CallStarted {
		t.Errorf("first = %s", ev.Type)
	}
	if ev := <-fast; ev.Type != CallMessage {
		t.Errorf("second = %s", ev.Type)
	}
	if h.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", h.Dropped())
	}

	cancelFast()
	cancelFast()
	if _, ok := <-fast; ok {
		t.Error("channel should be closed after cancel")
	}
	if h.Subscribers() != 1 {
		t.Errorf("subscribers after cancel = %d", h.Subscribers())
	}
}

func TestHubSSEHandler(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h.Handler(0))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?call_id=CALL-2", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	h.Emit(New(CallStarted, "CALL-1"))
	h.Emit(New(CallTakeover, "CALL-2").WithData("reason", "customer angry"))

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			break
		}
	}
	if strings.TrimSpace(line) != "event: call.takeover" {
		t.Errorf("event line = %q (filtered event leaked?)", line)
	}
	data, _ := r.ReadString('\n')
	if !strings.Contains(data, `"reason":"customer angry"`) {
		t.Errorf("data line = %q", data)
	}
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "calls")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedisPublisher(client, WithChannel("calls"), WithKeyPrefix("test:call:"), WithTTL(time.Minute))

	pub.Emit(New(CallStarted, "CALL-1").WithData("phone", "+919876543210"))

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != CallStarted || ev.CallID != "CALL-1" {
		t.Errorf("event = %+v", ev)
	}

	latest, err := pub.Latest(ctx, "CALL-1")
	if err != nil || latest == nil {
		t.Fatalf("Latest = %s, %v", latest, err)
	}
	if ttl := mr.TTL("test:call:CALL-1"); ttl != time.Minute {
		t.Errorf("ttl = %v", ttl)
	}

	if err := pub.Publish(ctx, New(CallEnded, "CALL-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mr.Exists("test:call:CALL-1") {
		t.Error("key should be removed when the call ends")
	}
	latest, err = pub.Latest(ctx, "CALL-1")
	if err != nil || latest != nil {
		t.Errorf("Latest after end = %s, %v", latest, err)
	}
}

func TestRedisPublisherOutageIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	pub := NewRedisPublisher(client)
	mr.Close()

	pub.Emit(New(CallStarted, "CALL-1"))
	if err := pub.Publish(context.Background(), New(CallStarted, "CALL-1")); err == nil {
		t.Error("expected publish error with redis down")
	}
}

func TestExportLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := ExportLog([]*Event{New(CallStarted, "CALL-1")}, path); err != nil {
		t.Fatalf("ExportLog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != CallStarted {
		t.Errorf("exported = %+v", got)
	}
}
