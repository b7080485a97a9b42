package feed

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fireside/chat-app/internal/docstore"
	"github.com/fireside/chat-app/internal/metrics"
)

// lookupTimeout bounds a single reply-target fetch.
const lookupTimeout = 5 * time.Second

// Resolver performs best-effort, asynchronous reply-context lookups. Each
// target id is fetched at most once: a hit settles as a quoted context, a
// miss (or any lookup failure) settles permanently as "no context". There
// are no retries.
type Resolver struct {
	store docstore.Store

	mu      sync.Mutex
	settled map[string]*ReplyContext // nil value = permanent miss
	pending map[string]bool
}

// NewResolver creates a resolver over the given store.
func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{
		store:   store,
		settled: make(map[string]*ReplyContext),
		pending: make(map[string]bool),
	}
}

// Settled returns the outcome for a target id if its lookup has finished.
// A (nil, true) result is a permanent miss.
func (r *Resolver) Settled(id string) (*ReplyContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.settled[id]
	return rc, ok
}

// Resolve starts an asynchronous lookup for the target id unless one has
// already settled or is in flight. done is invoked once with the outcome;
// it runs on the lookup goroutine.
func (r *Resolver) Resolve(id string, done func(id string, rc *ReplyContext)) {
	r.mu.Lock()
	if _, ok := r.settled[id]; ok || r.pending[id] {
		r.mu.Unlock()
		return
	}
	r.pending[id] = true
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		doc, err := r.store.Get(ctx, docstore.Messages, id)
		cancel()

		var rc *ReplyContext
		switch {
		case err == nil:
			msg := DecodeMessage(doc)
			rc = &ReplyContext{AuthorName: msg.AuthorName, Text: msg.Text}
		case errors.Is(err, docstore.ErrNotFound):
			metrics.ReplyLookupMisses.Inc()
		default:
			// Treated the same as a miss: settle without context, no retry.
			metrics.ReplyLookupMisses.Inc()
			log.Printf("[feed] reply lookup %s: %v", id, err)
		}

		r.mu.Lock()
		delete(r.pending, id)
		r.settled[id] = rc
		r.mu.Unlock()

		if done != nil {
			done(id, rc)
		}
	}()
}
