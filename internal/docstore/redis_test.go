package docstore

import (
	"reflect"
	"testing"
	"time"
)

// The Redis store itself needs a live backend; these tests cover the pure
// encode/decode and ordering helpers it shares with the memory store.

func TestEncodeDecodeRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	blob, err := encodeDoc(7, map[string]any{
		"text":      "hello",
		"uid":       "u1",
		"createdAt": created,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	doc, err := decodeDoc("m1", blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "m1" || doc.Seq != 7 {
		t.Errorf("identity lost: id=%q seq=%d", doc.ID, doc.Seq)
	}
	if doc.String("text") != "hello" {
		t.Errorf("expected text %q, got %q", "hello", doc.String("text"))
	}
	got := doc.Time("createdAt")
	if got == nil || !got.Equal(created) {
		t.Errorf("createdAt did not round-trip as time.Time: %v", got)
	}
}

func TestDecodeDocRejectsGarbage(t *testing.T) {
	if _, err := decodeDoc("x", []byte("{not json")); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}

func TestSortDocsNullsAndTies(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{ID: "late", Seq: 1, Fields: map[string]any{"createdAt": t1.Add(time.Hour)}},
		{ID: "untimed", Seq: 2, Fields: map[string]any{}},
		{ID: "tie-a", Seq: 3, Fields: map[string]any{"createdAt": t1}},
		{ID: "tie-b", Seq: 4, Fields: map[string]any{"createdAt": t1}},
	}

	sortDocs(docs, &OrderBy{Field: "createdAt"})

	// Untimed first, then ascending timestamps with ties in arrival order.
	want := []string{"untimed", "tie-a", "tie-b", "late"}
	if !reflect.DeepEqual(ids(docs), want) {
		t.Errorf("expected order %v, got %v", want, ids(docs))
	}
}

func TestSortDocsUntimedBetweenInvertedTimestamps(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{ID: "later", Seq: 1, Fields: map[string]any{"createdAt": t1.Add(24 * time.Hour)}},
		{ID: "untimed", Seq: 2, Fields: map[string]any{}},
		{ID: "earlier", Seq: 3, Fields: map[string]any{"createdAt": t1}},
	}

	sortDocs(docs, &OrderBy{Field: "createdAt"})

	// An untimed document whose arrival sits between two timestamped ones
	// must not pull the timestamps out of ascending order.
	want := []string{"untimed", "earlier", "later"}
	if !reflect.DeepEqual(ids(docs), want) {
		t.Errorf("expected order %v, got %v", want, ids(docs))
	}
}

func TestMatchesMissingField(t *testing.T) {
	doc := Document{ID: "d", Fields: map[string]any{"text": "x"}}
	if matches(doc, []Filter{{Field: "username", Op: "==", Value: "ko"}}) {
		t.Error("document without the filtered field must not match")
	}
}

func TestMatchesOps(t *testing.T) {
	doc := Document{ID: "d", Fields: map[string]any{"username": "bob"}}

	cases := []struct {
		op    string
		value string
		want  bool
	}{
		{"==", "bob", true},
		{"==", "alice", false},
		{">=", "b", true},
		{">=", "c", false},
		{"<=", "c", true},
		{"<=", "a", false},
		{"!=", "bob", false}, // unknown op never matches
	}
	for _, tc := range cases {
		got := matches(doc, []Filter{{Field: "username", Op: tc.op, Value: tc.value}})
		if got != tc.want {
			t.Errorf("op %q value %q: expected %v, got %v", tc.op, tc.value, tc.want, got)
		}
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
