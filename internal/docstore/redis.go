package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fireside/chat-app/internal/messaging"
)

const (
	// DocPrefix is the Redis key prefix for document blobs.
	DocPrefix = "doc:"

	// ColPrefix is the Redis key prefix for per-collection arrival indexes
	// (sorted sets scored by arrival sequence).
	ColPrefix = "col:"

	// SeqPrefix is the Redis key prefix for per-collection sequence counters.
	SeqPrefix = "seq:"

	// snapshotTimeout bounds the collection re-read triggered by a change
	// notification.
	snapshotTimeout = 5 * time.Second

	// maxUpdateRetries bounds how often an Update retries after losing its
	// optimistic transaction to a concurrent write.
	maxUpdateRetries = 5
)

// RedisStore implements Store on Redis, with NATS fanning out change
// notifications so every subscriber re-reads and re-delivers the full
// collection snapshot.
type RedisStore struct {
	rdb  *redis.Client
	nats *messaging.NATSClient
}

// NewRedisStore creates a store over existing Redis and NATS clients.
func NewRedisStore(rdb *redis.Client, nats *messaging.NATSClient) *RedisStore {
	return &RedisStore{rdb: rdb, nats: nats}
}

// storedDoc is the JSON shape of a document in Redis. Time-valued fields are
// carried separately so they round-trip as time.Time rather than strings.
type storedDoc struct {
	Seq    uint64               `json:"seq"`
	Fields map[string]any       `json:"fields"`
	Times  map[string]time.Time `json:"times,omitempty"`
}

// changeNote is the payload published on docs.<collection>. Subscribers
// re-read the collection; the id is informational.
type changeNote struct {
	ID string `json:"id"`
}

// Get retrieves a single document. Returns ErrNotFound if absent.
func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.rdb.Get(ctx, DocPrefix+collection+":"+id).Result()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decodeDoc(id, []byte(raw))
}

// Set writes a document, replacing any existing fields entirely. The arrival
// sequence of an existing document is preserved.
func (s *RedisStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	seq, err := s.seqFor(ctx, collection, id)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, id, seq, resolveTimestamps(fields, time.Now()))
}

// Update merges partial fields into an existing document. The read-modify-
// write runs under WATCH so a concurrent write to the same document aborts
// the transaction and the merge is retried against the fresh state.
// Returns ErrNotFound if the document does not exist.
func (s *RedisStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	key := DocPrefix + collection + ":" + id
	resolved := resolveTimestamps(partial, time.Now())

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decodeDoc(id, []byte(raw))
		if err != nil {
			return err
		}
		for k, v := range resolved {
			doc.Fields[k] = v
		}
		blob, err := encodeDoc(doc.Seq, doc.Fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, blob, 0)
			pipe.ZAdd(ctx, ColPrefix+collection, redis.Z{Score: float64(doc.Seq), Member: id})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
		}
		s.publishChange(collection, id)
		return nil
	}
	return fmt.Errorf("docstore: update %s/%s: %w", collection, id, redis.TxFailedErr)
}

// Add inserts a new document under an auto-assigned id.
func (s *RedisStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	seq, err := s.nextSeq(ctx, collection)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, collection, id, seq, resolveTimestamps(fields, time.Now())); err != nil {
		return "", err
	}
	return id, nil
}

// Query returns the filtered, ordered contents of a collection.
func (s *RedisStore) Query(ctx context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error) {
	ids, err := s.rdb.ZRange(ctx, ColPrefix+collection, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	docs := []Document{}
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = DocPrefix + collection + ":" + id
	}
	raws, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}

	for i, raw := range raws {
		blob, ok := raw.(string)
		if !ok {
			continue // expired or deleted between ZRANGE and MGET
		}
		doc, err := decodeDoc(ids[i], []byte(blob))
		if err != nil {
			log.Printf("[docstore] skipping undecodable doc %s/%s: %v", collection, ids[i], err)
			continue
		}
		if matches(doc, filters) {
			docs = append(docs, doc)
		}
	}
	sortDocs(docs, order)
	return docs, nil
}

// redisSub is the cancellation handle for a Redis-backed subscription.
type redisSub struct {
	store *RedisStore
	key   string

	mu        sync.Mutex
	cancelled bool
}

// Cancel releases the NATS subscription. A notification racing with Cancel
// is dropped.
func (r *redisSub) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	r.mu.Unlock()

	if err := r.store.nats.UnsubscribeDocChanges(r.key); err != nil {
		log.Printf("[docstore] unsubscribe %s: %v", r.key, err)
	}
}

func (r *redisSub) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Subscribe registers a snapshot callback. The initial snapshot is delivered
// before Subscribe returns; subsequent snapshots follow every change
// notification for the collection.
func (s *RedisStore) Subscribe(collection string, filters []Filter, order *OrderBy, fn SnapshotFunc) (Subscription, error) {
	sub := &redisSub{
		store: s,
		key:   collection + ":" + uuid.NewString(),
	}

	deliver := func() {
		if sub.isCancelled() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		docs, err := s.Query(ctx, collection, filters, order)
		cancel()
		if err != nil {
			log.Printf("[docstore] snapshot %s: %v", collection, err)
			return
		}
		if sub.isCancelled() {
			return
		}
		fn(docs)
	}

	err := s.nats.SubscribeDocChanges(collection, sub.key, func([]byte) {
		deliver()
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: subscribe %s: %w", collection, err)
	}

	deliver()
	return sub, nil
}

// write stores the document blob, indexes it, and publishes the change.
func (s *RedisStore) write(ctx context.Context, collection, id string, seq uint64, fields map[string]any) error {
	blob, err := encodeDoc(seq, fields)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, DocPrefix+collection+":"+id, blob, 0)
	pipe.ZAdd(ctx, ColPrefix+collection, redis.Z{Score: float64(seq), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("docstore: write %s/%s: %w", collection, id, err)
	}

	s.publishChange(collection, id)
	return nil
}

func (s *RedisStore) publishChange(collection, id string) {
	note, _ := json.Marshal(changeNote{ID: id})
	if err := s.nats.PublishDocChange(collection, note); err != nil {
		log.Printf("[docstore] publish change %s/%s: %v", collection, id, err)
	}
}

// seqFor returns the existing arrival sequence for id, or allocates the next
// one if the document is new.
func (s *RedisStore) seqFor(ctx context.Context, collection, id string) (uint64, error) {
	score, err := s.rdb.ZScore(ctx, ColPrefix+collection, id).Result()
	if err == nil {
		return uint64(score), nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("docstore: seq lookup %s/%s: %w", collection, id, err)
	}
	return s.nextSeq(ctx, collection)
}

func (s *RedisStore) nextSeq(ctx context.Context, collection string) (uint64, error) {
	n, err := s.rdb.Incr(ctx, SeqPrefix+collection).Result()
	if err != nil {
		return 0, fmt.Errorf("docstore: next seq %s: %w", collection, err)
	}
	return uint64(n), nil
}

func encodeDoc(seq uint64, fields map[string]any) ([]byte, error) {
	sd := storedDoc{Seq: seq, Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			if sd.Times == nil {
				sd.Times = make(map[string]time.Time)
			}
			sd.Times[k] = t
			continue
		}
		sd.Fields[k] = v
	}
	return json.Marshal(sd)
}

func decodeDoc(id string, blob []byte) (Document, error) {
	var sd storedDoc
	if err := json.Unmarshal(blob, &sd); err != nil {
		return Document{}, err
	}
	if sd.Fields == nil {
		sd.Fields = make(map[string]any)
	}
	for k, t := range sd.Times {
		sd.Fields[k] = t
	}
	return Document{ID: id, Seq: sd.Seq, Fields: sd.Fields}, nil
}
