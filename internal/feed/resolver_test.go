package feed

import (
	"context"
	"testing"
	"time"

	"github.com/fireside/chat-app/internal/docstore"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestResolveHit(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Set(context.Background(), docstore.Messages, "parent", map[string]any{
		"text":     "original",
		"username": "alice",
	})

	r := NewResolver(store)
	done := make(chan *ReplyContext, 1)
	r.Resolve("parent", func(_ string, rc *ReplyContext) { done <- rc })

	select {
	case rc := <-done:
		if rc == nil {
			t.Fatal("expected a resolved context")
		}
		if rc.AuthorName != "alice" || rc.Text != "original" {
			t.Errorf("unexpected context: %+v", rc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never settled")
	}

	rc, ok := r.Settled("parent")
	if !ok || rc == nil {
		t.Error("hit must be cached as settled")
	}
}

func TestResolveMissSettlesPermanently(t *testing.T) {
	r := NewResolver(docstore.NewMemoryStore())

	done := make(chan *ReplyContext, 1)
	r.Resolve("never-existed", func(_ string, rc *ReplyContext) { done <- rc })

	select {
	case rc := <-done:
		if rc != nil {
			t.Fatalf("expected a miss, got %+v", rc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never settled")
	}

	rc, ok := r.Settled("never-existed")
	if !ok {
		t.Fatal("miss must settle, not stay pending")
	}
	if rc != nil {
		t.Fatal("miss must settle as no context")
	}

	// A settled id is never looked up again: done must not fire.
	r.Resolve("never-existed", func(string, *ReplyContext) {
		t.Error("settled id was resolved again")
	})
	time.Sleep(20 * time.Millisecond)
}

func TestResolveDeduplicatesInFlight(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Set(context.Background(), docstore.Messages, "parent", map[string]any{"text": "x"})

	r := NewResolver(store)
	settled := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		r.Resolve("parent", func(string, *ReplyContext) { settled <- struct{}{} })
	}

	<-time.After(100 * time.Millisecond)
	if got := len(settled); got > 1 {
		t.Errorf("expected at most one lookup, got %d completions", got)
	}
}
