// Package feed turns the raw snapshot stream of the messages collection into
// a stable, date-separated, reply-annotated, presence-aware view model. The
// ordering and annotation rules live in pure functions; the subscription
// plumbing lives in View.
package feed

import (
	"time"

	"github.com/fireside/chat-app/internal/docstore"
)

// Message is one chat message. Messages are immutable after creation; there
// is no edit or delete. CreatedAt is nil during the brief window between an
// optimistic local insert and the backend commit stamping it.
type Message struct {
	ID         string
	Text       string
	AuthorID   string
	AuthorName string // sender's display name at send time, not live-updated
	CreatedAt  *time.Time
	ReplyToID  string // optional, single-level reply link
}

// PresenceRecord is a user's online/offline status with a last-active stamp.
type PresenceRecord struct {
	UserID       string
	IsOnline     bool
	LastActiveAt *time.Time
}

// DecodeMessage converts a stored document into a Message. Missing or
// malformed fields decode to zero values; nothing is dropped.
func DecodeMessage(doc docstore.Document) Message {
	return Message{
		ID:         doc.ID,
		Text:       doc.String("text"),
		AuthorID:   doc.String("uid"),
		AuthorName: doc.String("username"),
		CreatedAt:  doc.Time("createdAt"),
		ReplyToID:  doc.String("replyTo"),
	}
}

// DecodeMessages converts a full snapshot, preserving input order.
func DecodeMessages(docs []docstore.Document) []Message {
	msgs := make([]Message, len(docs))
	for i, doc := range docs {
		msgs[i] = DecodeMessage(doc)
	}
	return msgs
}

// DecodePresence converts a users-collection document into a PresenceRecord.
func DecodePresence(doc docstore.Document) PresenceRecord {
	return PresenceRecord{
		UserID:       doc.ID,
		IsOnline:     doc.Bool("isOnline"),
		LastActiveAt: doc.Time("lastActiveAt"),
	}
}

// DecodePresenceRecords converts a full users snapshot.
func DecodePresenceRecords(docs []docstore.Document) []PresenceRecord {
	records := make([]PresenceRecord, len(docs))
	for i, doc := range docs {
		records[i] = DecodePresence(doc)
	}
	return records
}
