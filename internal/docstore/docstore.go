// Package docstore defines the document store contract the chat client is
// written against: collections of schemaless documents with one-shot queries
// and live subscriptions that push a full snapshot of the collection on every
// change. Two implementations are provided: a Redis/NATS-backed store for
// production and an in-memory store for tests.
package docstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Collection names used by the chat client.
const (
	Users       = "users"
	Usernames   = "usernames"
	Messages    = "messages"
	GlobalGroup = "globalGroup"
	Accounts    = "accounts"
)

// ErrNotFound is returned by Get when no document exists under the given id.
var ErrNotFound = errors.New("docstore: document not found")

// ServerTimestamp is a sentinel field value. A write carrying it has the
// field replaced with the store's clock at commit time, so ordering stays
// consistent across clients with drifting clocks.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Document is a single stored record. Fields is an opaque bag of values;
// time-valued fields round-trip as time.Time. Seq is a per-collection
// monotonic arrival sequence assigned at first write, used as the ordering
// fallback for equal or missing sort keys.
type Document struct {
	ID     string
	Seq    uint64
	Fields map[string]any
}

// Time returns the named field as a time, or nil if the field is absent or
// not time-valued.
func (d Document) Time(field string) *time.Time {
	if t, ok := d.Fields[field].(time.Time); ok {
		return &t
	}
	return nil
}

// String returns the named field as a string, or "" if absent.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool returns the named field as a bool, or false if absent.
func (d Document) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Filter restricts a query or subscription to documents whose field value
// satisfies Op ("==", ">=" or "<=") against Value.
type Filter struct {
	Field string
	Op    string
	Value any
}

// OrderBy sorts results by a field, ascending. Documents missing the field
// sort before every valued document; within the missing group, and on equal
// values, arrival order breaks the tie.
type OrderBy struct {
	Field string
}

// SnapshotFunc receives the complete current contents of a subscribed
// collection, already filtered and ordered. It is invoked once immediately
// after subscribing and again on every subsequent change.
type SnapshotFunc func(docs []Document)

// Subscription is the cancellation handle for a live subscription. After
// Cancel returns, the callback is never invoked again; a delivery racing
// with Cancel is dropped, not an error.
type Subscription interface {
	Cancel()
}

// Store is the document store collaborator. All blocking calls take a
// context; implementations serialize writes to a single document.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	Query(ctx context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error)
	Subscribe(collection string, filters []Filter, order *OrderBy, fn SnapshotFunc) (Subscription, error)
}

// resolveTimestamps returns a copy of fields with every ServerTimestamp
// sentinel replaced by now.
func resolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

// matches reports whether a document satisfies every filter. A document
// missing a filtered field never matches.
func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok {
			return false
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case "==":
			if c != 0 {
				return false
			}
		case ">=":
			if c < 0 {
				return false
			}
		case "<=":
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sortDocs orders docs by the OrderBy field ascending, with documents
// missing the field grouped first. Arrival sequence breaks every remaining
// tie, so the result is a total order and two timestamped documents never
// trade places because an untimed one sits between them. A nil order sorts
// by arrival alone.
func sortDocs(docs []Document, order *OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		if order != nil {
			vi, iok := docs[i].Fields[order.Field]
			vj, jok := docs[j].Fields[order.Field]
			if iok != jok {
				return !iok
			}
			if iok && jok {
				if c, ok := compare(vi, vj); ok && c != 0 {
					return c < 0
				}
			}
		}
		return docs[i].Seq < docs[j].Seq
	})
}

// compare orders two field values of the same shape. The second result is
// false when the values are not comparable.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		}
		return 0, true
	case float64:
		bv, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmpFloat(av, bv), true
	case int:
		bv, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmpFloat(float64(av), bv), true
	case int64:
		bv, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmpFloat(float64(av), bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
