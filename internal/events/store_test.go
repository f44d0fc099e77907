package events

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/treykane/cfrok/internal/model"
)

func TestStoreAppendReadAndFilters(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().Add(-2 * time.Hour).UTC()
	seed := []Event{
		{Timestamp: base, SessionID: "a", Subdomain: "api-1234.example.com", EventType: TypeStartRequested},
		{Timestamp: base.Add(10 * time.Minute), SessionID: "a", Subdomain: "api-1234.example.com", EventType: TypeRunning, State: model.StateRunning, PID: 42},
		{Timestamp: base.Add(20 * time.Minute), SessionID: "b", Subdomain: "db.example.com", EventType: TypeStartFailed},
	}
	for _, evt := range seed {
		if err := s.Append(evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.Read(Query{})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[1].State != model.StateRunning || all[1].PID != 42 {
		t.Fatalf("fields not preserved: %+v", all[1])
	}

	bySub, err := s.Read(Query{Subdomain: "api-1234.example.com"})
	if err != nil {
		t.Fatalf("read subdomain: %v", err)
	}
	if len(bySub) != 2 {
		t.Fatalf("expected 2 api events, got %d", len(bySub))
	}

	byType, err := s.Read(Query{EventType: TypeStartFailed})
	if err != nil {
		t.Fatalf("read type: %v", err)
	}
	if len(byType) != 1 || byType[0].SessionID != "b" {
		t.Fatalf("unexpected type result: %+v", byType)
	}

	limited, err := s.Read(Query{Limit: 1})
	if err != nil {
		t.Fatalf("read limit: %v", err)
	}
	if len(limited) != 1 || limited[0].SessionID != "b" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}

	since, err := s.Read(Query{Since: base.Add(15 * time.Minute)})
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(since) != 1 || since[0].SessionID != "b" {
		t.Fatalf("unexpected since result: %+v", since)
	}
}

func TestStoreReadMissingFile(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "none.jsonl"))
	evts, err := s.Read(Query{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evts) != 0 {
		t.Fatalf("expected no events, got %d", len(evts))
	}
}

func TestStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := "{\"event_type\":\"running\"}\nnot json\n\n{\"event_type\":\"stopped\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	evts, err := NewStoreAt(path).Read(Query{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evts) != 2 || evts[1].EventType != TypeStopped {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestStoreAppendSetsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	s := NewStoreAt(path)
	if err := s.Append(Event{EventType: TypeStopRequested}); err != nil {
		t.Fatalf("append: %v", err)
	}
	evts, err := s.Read(Query{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evts) != 1 || evts[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamped event, got %+v", evts)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "events.jsonl"))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Append(Event{SessionID: "s", EventType: TypeStateChanged, PID: i + 1}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	evts, err := s.Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 20 {
		t.Fatalf("expected 20 intact events, got %d", len(evts))
	}
}

func TestSessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evts := []Event{
		{Timestamp: base, SessionID: "a", EventType: TypeStartRequested},
		{Timestamp: base.Add(time.Second), SessionID: "b", EventType: TypeStartRequested},
		{Timestamp: base.Add(2 * time.Second), SessionID: "a", Subdomain: "api.example.com", EventType: TypeRunning, State: model.StateRunning, PID: 7},
		{Timestamp: base.Add(3 * time.Second), SessionID: "b", Subdomain: "db.example.com", EventType: TypeStartFailed, Message: "dns route registration failed"},
		{Timestamp: base.Add(4 * time.Second), EventType: TypeStopped},
		{Timestamp: base.Add(time.Minute), SessionID: "a", EventType: TypeStopped, State: model.StateStopped, Message: "exit code 0"},
		{Timestamp: base.Add(2 * time.Minute), SessionID: "c", Subdomain: "web.example.com", EventType: TypeRunning, PID: 9},
	}

	got := Sessions(evts)
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %+v", got)
	}
	a, b, c := got[0], got[1], got[2]
	if a.SessionID != "a" || a.Subdomain != "api.example.com" || a.PID != 7 || a.Open() || a.State != model.StateStopped {
		t.Fatalf("unexpected session a: %+v", a)
	}
	if up := a.Uptime(base.Add(time.Hour)); up != time.Minute-2*time.Second {
		t.Fatalf("unexpected uptime %v", up)
	}
	if b.Open() || b.Last != TypeStartFailed || b.Message != "dns route registration failed" || b.Uptime(base) != 0 {
		t.Fatalf("unexpected session b: %+v", b)
	}
	if !c.Open() || c.Uptime(base.Add(3*time.Minute)) != time.Minute {
		t.Fatalf("unexpected session c: %+v", c)
	}
}
