package chat

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewTranscript_StartsWithGreeting(t *testing.T) {
	tr := NewTranscript("hello there")
	recs := tr.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Role != RoleAssistant || recs[0].Content != "hello there" {
		t.Fatalf("unexpected greeting %+v", recs[0])
	}
}

func TestTranscript_AppendAndReset(t *testing.T) {
	tr := NewTranscript("hi")
	tr.Append(NewRecord(RoleUser, "What is 25 * 13?"))
	tr.Append(NewRecord(RoleAssistant, "325"))

	recs := tr.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[1].Role != RoleUser || recs[2].Role != RoleAssistant {
		t.Fatalf("unexpected roles %q %q", recs[1].Role, recs[2].Role)
	}
	if last, _ := tr.Last(); last.Content != "325" {
		t.Fatalf("unexpected last %+v", last)
	}

	tr.Reset()
	if tr.Len() != 1 {
		t.Fatalf("reset left %d records", tr.Len())
	}
}

func TestTranscript_RecordsIsACopy(t *testing.T) {
	tr := NewTranscript("hi")
	recs := tr.Records()
	recs[0].Content = "mutated"
	if again := tr.Records(); again[0].Content != "hi" {
		t.Fatal("Records must not expose internal storage")
	}
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	tr := NewTranscript("hi")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(NewRecord(RoleUser, "q"))
			tr.Append(NewRecord(RoleAssistant, "a"))
		}()
	}
	wg.Wait()
	if tr.Len() != 101 {
		t.Fatalf("expected 101 records, got %d", tr.Len())
	}
}

func TestSession_CredentialIsTrimmed(t *testing.T) {
	s := NewSession("s1", "hi")
	if s.HasCredential() {
		t.Fatal("new session must not have a credential")
	}
	s.SetCredential("  gsk_123 \n")
	if s.Credential() != "gsk_123" {
		t.Fatalf("got %q", s.Credential())
	}
	s.SetCredential("   ")
	if s.HasCredential() {
		t.Fatal("blank key must clear the credential")
	}
}

func TestSession_OneRunAtATime(t *testing.T) {
	s := NewSession("s1", "hi")

	ctx, ok := s.Begin(context.Background())
	if !ok || !s.Busy() {
		t.Fatal("first Begin must succeed")
	}
	if _, ok := s.Begin(context.Background()); ok {
		t.Fatal("second Begin must be refused")
	}

	if !s.Cancel() {
		t.Fatal("Cancel must report the in-flight run")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled")
	}

	s.End()
	if s.Busy() {
		t.Fatal("End must release the slot")
	}
	if _, ok := s.Begin(context.Background()); !ok {
		t.Fatal("Begin after End must succeed")
	}
}

func TestManager_GetCreatesOnce(t *testing.T) {
	m := NewManager("hi")
	a := m.Get("abc")
	b := m.Get("abc")
	if a != b {
		t.Fatal("Get must return the same session")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
	if _, ok := m.Lookup("zzz"); ok {
		t.Fatal("Lookup must not create")
	}
	m.Delete("abc")
	if m.Len() != 0 {
		t.Fatal("Delete must remove the session")
	}
}

func TestManager_SweepKeepsBusyAndFresh(t *testing.T) {
	m := NewManager("hi")
	idle := m.Get("idle")
	busy := m.Get("busy")
	m.Get("fresh")

	past := time.Now().Add(-2 * time.Hour)
	idle.mu.Lock()
	idle.lastSeen = past
	idle.mu.Unlock()

	busy.Begin(context.Background())
	busy.mu.Lock()
	busy.lastSeen = past
	busy.mu.Unlock()

	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, ok := m.Lookup("idle"); ok {
		t.Fatal("idle session must be removed")
	}
	if _, ok := m.Lookup("busy"); !ok {
		t.Fatal("busy session must be kept")
	}
}
