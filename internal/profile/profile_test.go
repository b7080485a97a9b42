package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/fireside/chat-app/internal/docstore"
)

func TestClaimUsername(t *testing.T) {
	store := docstore.NewMemoryStore()
	s := NewService(store, nil)
	ctx := context.Background()

	if err := s.ClaimUsername(ctx, "u1", "ko@example.com", "ko"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	user, err := store.Get(ctx, docstore.Users, "u1")
	if err != nil {
		t.Fatalf("user doc missing: %v", err)
	}
	if user.String("username") != "ko" || user.String("email") != "ko@example.com" {
		t.Errorf("unexpected user doc: %v", user.Fields)
	}

	index, err := store.Get(ctx, docstore.Usernames, "ko")
	if err != nil {
		t.Fatalf("index doc missing: %v", err)
	}
	if index.String("uid") != "u1" {
		t.Errorf("index points at %q, want u1", index.String("uid"))
	}
}

func TestClaimUsernameConflictBlocksUserWrite(t *testing.T) {
	store := docstore.NewMemoryStore()
	s := NewService(store, nil)
	ctx := context.Background()

	if err := s.ClaimUsername(ctx, "u1", "first@example.com", "ko"); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := s.ClaimUsername(ctx, "u2", "second@example.com", "ko")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	// The conflicting claim must not have touched users/u2.
	if _, err := store.Get(ctx, docstore.Users, "u2"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("conflicting claim wrote the user document")
	}

	// And the index still points at the original owner.
	index, _ := store.Get(ctx, docstore.Usernames, "ko")
	if index.String("uid") != "u1" {
		t.Errorf("index rebound to %q", index.String("uid"))
	}
}

// mirrorRecorder records display-name mirror calls.
type mirrorRecorder struct {
	names []string
	err   error
}

func (m *mirrorRecorder) SetDisplayName(_ context.Context, name string) error {
	m.names = append(m.names, name)
	return m.err
}

func TestClaimUsernameMirrorsDisplayName(t *testing.T) {
	rec := &mirrorRecorder{}
	s := NewService(docstore.NewMemoryStore(), rec)

	if err := s.ClaimUsername(context.Background(), "u1", "ko@example.com", "ko"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(rec.names) != 1 || rec.names[0] != "ko" {
		t.Errorf("expected one mirror call with %q, got %v", "ko", rec.names)
	}
}

func TestUpdateMirrorsDisplayName(t *testing.T) {
	rec := &mirrorRecorder{}
	store := docstore.NewMemoryStore()
	s := NewService(store, rec)
	ctx := context.Background()

	if err := s.Update(ctx, "u1", "ko@example.com", "koko", "bio"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(rec.names) != 1 || rec.names[0] != "koko" {
		t.Errorf("expected one mirror call with %q, got %v", "koko", rec.names)
	}
}

func TestMirrorFailureDoesNotFailUpdate(t *testing.T) {
	rec := &mirrorRecorder{err: errors.New("account store down")}
	store := docstore.NewMemoryStore()
	s := NewService(store, rec)
	ctx := context.Background()

	if err := s.Update(ctx, "u1", "ko@example.com", "ko", ""); err != nil {
		t.Fatalf("mirror failure must not surface, got %v", err)
	}
	// The profile write itself went through.
	if p, err := s.Load(ctx, "u1"); err != nil || p.Username != "ko" {
		t.Errorf("profile missing after mirror failure: %+v, %v", p, err)
	}
}

func TestClaimUsernameRejectsBlank(t *testing.T) {
	s := NewService(docstore.NewMemoryStore(), nil)
	for _, name := range []string{"", "   "} {
		if err := s.ClaimUsername(context.Background(), "u1", "e", name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("name %q: expected ErrInvalidUsername, got %v", name, err)
		}
	}
}

func TestUpdateAndLoad(t *testing.T) {
	store := docstore.NewMemoryStore()
	s := NewService(store, nil)
	ctx := context.Background()

	if err := s.Update(ctx, "u1", "ko@example.com", "ko", "hello there"); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Profile{UID: "u1", Email: "ko@example.com", Username: "ko", Bio: "hello there"}
	if p != want {
		t.Errorf("loaded %+v, want %+v", p, want)
	}
}

func TestLoadMissingIsSoftMiss(t *testing.T) {
	s := NewService(docstore.NewMemoryStore(), nil)
	_, err := s.Load(context.Background(), "nobody")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchByPrefix(t *testing.T) {
	store := docstore.NewMemoryStore()
	s := NewService(store, nil)
	ctx := context.Background()

	s.Update(ctx, "u1", "a@example.com", "alice", "")
	s.Update(ctx, "u2", "b@example.com", "bob", "")
	s.Update(ctx, "u3", "c@example.com", "alicia", "")

	got, err := s.Search(ctx, "ali")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].Username != "alice" || got[1].Username != "alicia" {
		t.Errorf("unexpected matches: %+v", got)
	}

	empty, err := s.Search(ctx, "  ")
	if err != nil || empty != nil {
		t.Errorf("blank prefix must match nothing, got %v, %v", empty, err)
	}
}
