package archive

import "sync"

// seenRing remembers the last N archived message ids. It is goroutine-safe
// and uses a fixed-size ring internally: when full, the oldest id is
// forgotten to make room.
type seenRing struct {
	mu  sync.Mutex
	ids []string
	pos int
	set map[string]bool
}

func newSeenRing(size int) *seenRing {
	return &seenRing{
		ids: make([]string, size),
		set: make(map[string]bool, size),
	}
}

// Add records an id. Returns false if the id was already present.
func (r *seenRing) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set[id] {
		return false
	}

	if old := r.ids[r.pos]; old != "" {
		delete(r.set, old)
	}
	r.ids[r.pos] = id
	r.pos = (r.pos + 1) % len(r.ids)
	r.set[id] = true
	return true
}

// Forget drops an id so a later Add sees it as new again. Used when an
// insert fails and should be retried on the next snapshot. The ring slot is
// cleared too, so a re-added id never occupies two slots.
func (r *seenRing) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.set[id] {
		return
	}
	delete(r.set, id)
	for i, v := range r.ids {
		if v == id {
			r.ids[i] = ""
			break
		}
	}
}
