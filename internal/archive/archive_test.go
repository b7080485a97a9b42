package archive

import (
	"fmt"
	"testing"
	"time"

	"github.com/fireside/chat-app/internal/feed"
)

func TestSeenRingAdd(t *testing.T) {
	r := newSeenRing(3)

	if !r.Add("a") {
		t.Fatal("first add must report new")
	}
	if r.Add("a") {
		t.Fatal("second add of same id must report seen")
	}
}

func TestSeenRingEvictsOldest(t *testing.T) {
	r := newSeenRing(3)

	for i := 1; i <= 4; i++ {
		r.Add(fmt.Sprintf("id-%d", i))
	}

	// id-1 was evicted to make room for id-4.
	if !r.Add("id-1") {
		t.Error("evicted id must read as new again")
	}
	if r.Add("id-4") {
		t.Error("recent id must still read as seen")
	}
}

func TestSeenRingForget(t *testing.T) {
	r := newSeenRing(3)

	r.Add("a")
	r.Forget("a")
	if !r.Add("a") {
		t.Error("forgotten id must read as new")
	}
}

func TestSeenRingForgetClearsSlot(t *testing.T) {
	r := newSeenRing(3)

	// Forget-then-readd must not leave "a" in two slots: when the ring
	// wraps over the stale slot, the live entry has to survive.
	r.Add("a")
	r.Forget("a")
	r.Add("a")
	r.Add("b")
	r.Add("c")

	if r.Add("a") {
		t.Error("re-added id dropped when its stale slot was evicted")
	}
}

func TestInsertArgsNulls(t *testing.T) {
	createdAt, replyTo := insertArgs(feed.Message{ID: "m1", Text: "x"})
	if createdAt.Valid {
		t.Error("missing timestamp must map to NULL")
	}
	if replyTo.Valid {
		t.Error("missing reply link must map to NULL")
	}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	createdAt, replyTo = insertArgs(feed.Message{
		ID:        "m2",
		CreatedAt: &ts,
		ReplyToID: "m1",
	})
	if !createdAt.Valid || !createdAt.Time.Equal(ts) {
		t.Errorf("timestamp lost: %+v", createdAt)
	}
	if !replyTo.Valid || replyTo.String != "m1" {
		t.Errorf("reply link lost: %+v", replyTo)
	}
}
