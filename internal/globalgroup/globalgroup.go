// Package globalgroup is the flat, secondary message list shown on the chat
// page. Unlike the main feed it has no live subscription: the list is
// fetched once per visit and new posts only appear on the next fetch.
package globalgroup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fireside/chat-app/internal/docstore"
)

// Post is one entry in the global group list. Note the text field is named
// "message" in storage, unlike the main feed's "text".
type Post struct {
	ID        string
	Username  string
	Message   string
	CreatedAt *time.Time
}

// Service reads and writes the globalGroup collection.
type Service struct {
	store docstore.Store
}

// NewService creates a global group service.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// FetchAll returns the full list in arrival order.
func (s *Service) FetchAll(ctx context.Context) ([]Post, error) {
	docs, err := s.store.Query(ctx, docstore.GlobalGroup, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("globalgroup: fetch: %w", err)
	}

	posts := make([]Post, len(docs))
	for i, doc := range docs {
		posts[i] = Post{
			ID:        doc.ID,
			Username:  doc.String("username"),
			Message:   doc.String("message"),
			CreatedAt: doc.Time("createdAt"),
		}
	}
	return posts, nil
}

// Send appends a post under the given display name. Whitespace-only text is
// silently dropped.
func (s *Service) Send(ctx context.Context, username, message string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	if username == "" {
		username = "Anonymous"
	}

	_, err := s.store.Add(ctx, docstore.GlobalGroup, map[string]any{
		"message":   message,
		"username":  username,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("globalgroup: send: %w", err)
	}
	return nil
}
