package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation with the same snapshot
// semantics as the Redis-backed store. It exists so the view model, auth and
// profile flows can be tested without a live backend.
type MemoryStore struct {
	mu      sync.Mutex
	seq     uint64
	docs    map[string]map[string]Document // collection -> id -> doc
	subs    map[string][]*memorySub        // collection -> subscribers
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]map[string]Document),
		subs:    make(map[string][]*memorySub),
		nowFunc: time.Now,
	}
}

// SetClock overrides the clock used to resolve server timestamps. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.nowFunc = now
	s.mu.Unlock()
}

type memorySub struct {
	store      *MemoryStore
	collection string
	filters    []Filter
	order      *OrderBy
	fn         SnapshotFunc

	mu        sync.Mutex
	cancelled bool
}

// Cancel stops snapshot delivery. Safe to call more than once.
func (m *memorySub) Cancel() {
	m.mu.Lock()
	m.cancelled = true
	m.mu.Unlock()
	m.store.removeSub(m)
}

func (m *memorySub) deliver(docs []Document) {
	m.mu.Lock()
	cancelled := m.cancelled
	m.mu.Unlock()
	if cancelled {
		return
	}
	m.fn(docs)
}

// Get retrieves a document. Returns ErrNotFound if absent.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDoc(doc), nil
}

// Set writes a document, overwriting any existing fields entirely.
func (s *MemoryStore) Set(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	s.put(collection, id, resolveTimestamps(fields, s.nowFunc()))
	snaps := s.pendingSnapshots(collection)
	s.mu.Unlock()

	fanOut(snaps)
	return nil
}

// Update merges partial fields into an existing document.
// Returns ErrNotFound if the document does not exist.
func (s *MemoryStore) Update(_ context.Context, collection, id string, partial map[string]any) error {
	s.mu.Lock()
	doc, ok := s.docs[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged := copyDoc(doc)
	for k, v := range resolveTimestamps(partial, s.nowFunc()) {
		merged.Fields[k] = v
	}
	s.docs[collection][id] = merged
	snaps := s.pendingSnapshots(collection)
	s.mu.Unlock()

	fanOut(snaps)
	return nil
}

// Add inserts a new document under an auto-assigned id.
func (s *MemoryStore) Add(_ context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.put(collection, id, resolveTimestamps(fields, s.nowFunc()))
	snaps := s.pendingSnapshots(collection)
	s.mu.Unlock()

	fanOut(snaps)
	return id, nil
}

// Query returns the filtered, ordered contents of a collection.
func (s *MemoryStore) Query(_ context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(collection, filters, order), nil
}

// Subscribe registers a snapshot callback and delivers the initial snapshot
// synchronously before returning.
func (s *MemoryStore) Subscribe(collection string, filters []Filter, order *OrderBy, fn SnapshotFunc) (Subscription, error) {
	sub := &memorySub{
		store:      s,
		collection: collection,
		filters:    filters,
		order:      order,
		fn:         fn,
	}

	s.mu.Lock()
	s.subs[collection] = append(s.subs[collection], sub)
	initial := s.snapshot(collection, filters, order)
	s.mu.Unlock()

	sub.deliver(initial)
	return sub, nil
}

// put stores a document, preserving the arrival sequence of an existing one.
func (s *MemoryStore) put(collection, id string, fields map[string]any) {
	col, ok := s.docs[collection]
	if !ok {
		col = make(map[string]Document)
		s.docs[collection] = col
	}
	seq := col[id].Seq
	if seq == 0 {
		s.seq++
		seq = s.seq
	}
	col[id] = Document{ID: id, Seq: seq, Fields: fields}
}

func (s *MemoryStore) snapshot(collection string, filters []Filter, order *OrderBy) []Document {
	out := []Document{}
	for _, doc := range s.docs[collection] {
		if matches(doc, filters) {
			out = append(out, copyDoc(doc))
		}
	}
	sortDocs(out, order)
	return out
}

type pendingSnapshot struct {
	sub  *memorySub
	docs []Document
}

// pendingSnapshots computes, under the lock, one snapshot per live
// subscriber of the collection. Delivery happens after the lock is released
// so callbacks may re-enter the store.
func (s *MemoryStore) pendingSnapshots(collection string) []pendingSnapshot {
	var out []pendingSnapshot
	for _, sub := range s.subs[collection] {
		out = append(out, pendingSnapshot{
			sub:  sub,
			docs: s.snapshot(collection, sub.filters, sub.order),
		})
	}
	return out
}

func (s *MemoryStore) removeSub(sub *memorySub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.collection]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[sub.collection] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func fanOut(snaps []pendingSnapshot) {
	for _, snap := range snaps {
		snap.sub.deliver(snap.docs)
	}
}

func copyDoc(doc Document) Document {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return Document{ID: doc.ID, Seq: doc.Seq, Fields: fields}
}
