// Package archive mirrors the messages collection into PostgreSQL for
// durable history. It is driven by the same full-snapshot subscription the
// feed uses; inserts are idempotent by message id, so replayed snapshots are
// harmless.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/fireside/chat-app/internal/docstore"
	"github.com/fireside/chat-app/internal/feed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxSeenMessages bounds the in-memory dedupe ring. Messages older than the
// window are re-upserted on replay, which the ON CONFLICT clause absorbs.
const maxSeenMessages = 4096

// Archiver copies every message it has not seen yet into PostgreSQL.
type Archiver struct {
	db    *sql.DB
	store docstore.Store
	seen  *seenRing
}

// NewArchiver creates an archiver over an open database handle.
func NewArchiver(db *sql.DB, store docstore.Store) *Archiver {
	return &Archiver{
		db:    db,
		store: store,
		seen:  newSeenRing(maxSeenMessages),
	}
}

// RunMigrations applies the embedded schema migrations to the database.
func RunMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("archive: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("archive: open migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Run subscribes to the messages collection and archives snapshots until
// ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	sub, err := a.store.Subscribe(docstore.Messages, nil, &docstore.OrderBy{Field: "createdAt"}, func(docs []docstore.Document) {
		a.archiveSnapshot(ctx, docs)
	})
	if err != nil {
		return fmt.Errorf("archive: subscribe: %w", err)
	}
	defer sub.Cancel()

	<-ctx.Done()
	return nil
}

// archiveSnapshot upserts every message in the snapshot that the dedupe
// ring has not seen. Failures are logged per message; the snapshot replay
// on the next change retries them naturally.
func (a *Archiver) archiveSnapshot(ctx context.Context, docs []docstore.Document) {
	for _, doc := range docs {
		if !a.seen.Add(doc.ID) {
			continue
		}
		if err := a.insert(ctx, feed.DecodeMessage(doc)); err != nil {
			log.Printf("[archive] insert %s: %v", doc.ID, err)
			a.seen.Forget(doc.ID)
		}
	}
}

func (a *Archiver) insert(ctx context.Context, msg feed.Message) error {
	const query = `
		INSERT INTO archived_messages (id, text, username, uid, created_at, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	createdAt, replyTo := insertArgs(msg)
	_, err := a.db.ExecContext(ctx, query,
		msg.ID,
		msg.Text,
		msg.AuthorName,
		msg.AuthorID,
		createdAt,
		replyTo,
	)
	return err
}

// insertArgs maps the optional message fields to their SQL null forms.
func insertArgs(msg feed.Message) (sql.NullTime, sql.NullString) {
	var createdAt sql.NullTime
	if msg.CreatedAt != nil {
		createdAt = sql.NullTime{Time: *msg.CreatedAt, Valid: true}
	}
	var replyTo sql.NullString
	if msg.ReplyToID != "" {
		replyTo = sql.NullString{String: msg.ReplyToID, Valid: true}
	}
	return createdAt, replyTo
}
