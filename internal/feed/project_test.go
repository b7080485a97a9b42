package feed

import (
	"reflect"
	"testing"
	"time"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return &parsed
}

func messageRows(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.Kind == RowMessage {
			out = append(out, r)
		}
	}
	return out
}

func TestProjectPreservesOrderOneRowPerMessage(t *testing.T) {
	msgs := []Message{
		{ID: "a", Text: "one", AuthorID: "u1", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		{ID: "b", Text: "two", AuthorID: "u2", CreatedAt: ts(t, "2024-01-01T10:00:00Z")},
		{ID: "c", Text: "three", AuthorID: "u1", CreatedAt: ts(t, "2024-01-01T11:00:00Z")},
	}

	rows := Project(msgs, "u1", time.UTC)
	got := messageRows(rows)

	if len(got) != len(msgs) {
		t.Fatalf("expected %d message rows, got %d", len(msgs), len(got))
	}
	for i, r := range got {
		if r.Msg.ID != msgs[i].ID {
			t.Errorf("row %d: expected message %q, got %q", i, msgs[i].ID, r.Msg.ID)
		}
	}
}

func TestProjectIsSender(t *testing.T) {
	msgs := []Message{
		{ID: "a", AuthorID: "me", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		{ID: "b", AuthorID: "them", CreatedAt: ts(t, "2024-01-01T09:01:00Z")},
	}

	got := messageRows(Project(msgs, "me", time.UTC))
	if !got[0].IsSender {
		t.Error("own message must be marked as sender")
	}
	if got[1].IsSender {
		t.Error("other user's message must not be marked as sender")
	}
}

func TestProjectIdempotent(t *testing.T) {
	msgs := []Message{
		{ID: "a", AuthorID: "u1", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		{ID: "b", AuthorID: "u2", CreatedAt: nil},
		{ID: "c", AuthorID: "u1", CreatedAt: ts(t, "2024-01-02T09:00:00Z")},
	}

	first := Project(msgs, "u1", time.UTC)
	second := Project(msgs, "u1", time.UTC)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical snapshots must project to identical rows")
	}
}

func TestProjectDateSeparatorPlacement(t *testing.T) {
	msgs := []Message{
		{ID: "a", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		{ID: "b", CreatedAt: ts(t, "2024-01-01T18:00:00Z")},
		{ID: "c", CreatedAt: ts(t, "2024-01-02T08:00:00Z")},
	}

	rows := Project(msgs, "u1", time.UTC)

	want := []Row{
		{Kind: RowDateSeparator, DateLabel: "January 1, 2024"},
		{Kind: RowMessage, Msg: msgs[0]},
		{Kind: RowMessage, Msg: msgs[1]},
		{Kind: RowDateSeparator, DateLabel: "January 2, 2024"},
		{Kind: RowMessage, Msg: msgs[2]},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("unexpected rows:\n got %+v\nwant %+v", rows, want)
	}
}

func TestProjectSeparatorDatesUseLocation(t *testing.T) {
	// 23:30 UTC on Jan 1 is already Jan 2 in UTC+1.
	msgs := []Message{{ID: "a", CreatedAt: ts(t, "2024-01-01T23:30:00Z")}}

	rows := Project(msgs, "u1", time.FixedZone("UTC+1", 3600))
	if rows[0].DateLabel != "January 2, 2024" {
		t.Errorf("expected separator in rendering zone, got %q", rows[0].DateLabel)
	}
}

func TestProjectNullTimestampsAlwaysSeparated(t *testing.T) {
	msgs := []Message{
		{ID: "a", CreatedAt: nil},
		{ID: "b", CreatedAt: nil},
		{ID: "c", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
	}

	rows := Project(msgs, "u1", time.UTC)

	// Each null-timestamped message gets its own fresh Unknown Date
	// separator; the dated message that follows gets a normal one.
	wantKinds := []RowKind{
		RowDateSeparator, RowMessage,
		RowDateSeparator, RowMessage,
		RowDateSeparator, RowMessage,
	}
	if len(rows) != len(wantKinds) {
		t.Fatalf("expected %d rows, got %d: %+v", len(wantKinds), len(rows), rows)
	}
	for i, kind := range wantKinds {
		if rows[i].Kind != kind {
			t.Fatalf("row %d: expected kind %v, got %v", i, kind, rows[i].Kind)
		}
	}
	if rows[0].DateLabel != UnknownDateLabel || rows[2].DateLabel != UnknownDateLabel {
		t.Error("null-timestamp separators must carry the Unknown Date label")
	}
	if rows[4].DateLabel != "January 1, 2024" {
		t.Errorf("dated message after unknowns must get its own separator, got %q", rows[4].DateLabel)
	}
}

func TestProjectNullBetweenSameDay(t *testing.T) {
	msgs := []Message{
		{ID: "a", CreatedAt: ts(t, "2024-01-01T09:00:00Z")},
		{ID: "b", CreatedAt: nil},
		{ID: "c", CreatedAt: ts(t, "2024-01-01T10:00:00Z")},
	}

	rows := Project(msgs, "u1", time.UTC)

	// The unknown message must not be silently merged into Jan 1: it gets a
	// fresh separator, and the following message re-announces Jan 1.
	var labels []string
	for _, r := range rows {
		if r.Kind == RowDateSeparator {
			labels = append(labels, r.DateLabel)
		}
	}
	want := []string{"January 1, 2024", UnknownDateLabel, "January 1, 2024"}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("expected separators %v, got %v", want, labels)
	}
}

func TestProjectEmptyInput(t *testing.T) {
	if rows := Project(nil, "u1", time.UTC); len(rows) != 0 {
		t.Errorf("empty snapshot must project to no rows, got %+v", rows)
	}
}

func TestCountOnline(t *testing.T) {
	records := []PresenceRecord{
		{UserID: "a", IsOnline: true},
		{UserID: "b", IsOnline: false},
		{UserID: "c", IsOnline: true},
	}
	if got := CountOnline(records); got != 2 {
		t.Errorf("expected 2 online, got %d", got)
	}
	if got := CountOnline(nil); got != 0 {
		t.Errorf("expected 0 online for empty input, got %d", got)
	}
}
