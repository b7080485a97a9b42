package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fireside/chat-app/internal/auth"
	"github.com/fireside/chat-app/internal/docstore"
	"github.com/fireside/chat-app/internal/metrics"
)

// View is the live view model over the messages and users collections. It
// owns the subscriptions it opens, keeps the projected rows and online count
// current, and implements the send and presence protocols. All state is
// rebuilt from snapshots; nothing survives a restart.
type View struct {
	store    docstore.Store
	auth     auth.Service
	resolver *Resolver
	loc      *time.Location

	mu         sync.Mutex
	open       bool
	rows       []Row
	online     int
	draft      string
	replyTo    string // staged reply target id
	cachedName string // profile username, refreshed from users snapshots
	subs       []docstore.Subscription
	onUpdate   func()
}

// NewView creates a view over the given collaborators. loc is the time zone
// used for date separators; nil means the process-local zone.
func NewView(store docstore.Store, authSvc auth.Service, loc *time.Location) *View {
	return &View{
		store:    store,
		auth:     authSvc,
		resolver: NewResolver(store),
		loc:      loc,
	}
}

// OnUpdate registers a redraw hook invoked after the rows or online count
// change. Must be set before Open.
func (v *View) OnUpdate(fn func()) {
	v.mu.Lock()
	v.onUpdate = fn
	v.mu.Unlock()
}

// Open marks the current user online and starts the messages and presence
// subscriptions. Requires a signed-in account.
func (v *View) Open(ctx context.Context) error {
	account, ok := v.auth.CurrentAccount()
	if !ok {
		return auth.ErrNotAuthenticated
	}

	v.mu.Lock()
	if v.open {
		v.mu.Unlock()
		return nil
	}
	v.open = true
	v.mu.Unlock()

	// Presence write failures are swallowed: there is no failure UI for
	// presence.
	v.writePresence(ctx, account, true)

	msgSub, err := v.store.Subscribe(docstore.Messages, nil, &docstore.OrderBy{Field: "createdAt"}, v.applyMessages)
	if err != nil {
		v.mu.Lock()
		v.open = false
		v.mu.Unlock()
		return fmt.Errorf("feed: subscribe messages: %w", err)
	}

	userSub, err := v.store.Subscribe(docstore.Users, nil, nil, v.applyPresence)
	if err != nil {
		msgSub.Cancel()
		v.mu.Lock()
		v.open = false
		v.mu.Unlock()
		return fmt.Errorf("feed: subscribe users: %w", err)
	}

	v.mu.Lock()
	v.subs = []docstore.Subscription{msgSub, userSub}
	v.mu.Unlock()
	metrics.SubscriptionsOpen.Add(2)
	return nil
}

// Close releases every subscription the view opened and, as the graceful
// half of the presence protocol, marks the current user offline. A client
// that disappears without calling Close stays marked online; there is no
// heartbeat or server-side expiry.
func (v *View) Close(ctx context.Context) {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return
	}
	v.open = false
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	metrics.SubscriptionsOpen.Sub(float64(len(subs)))

	if account, ok := v.auth.CurrentAccount(); ok {
		v.writePresence(ctx, account, false)
	}
}

// Rows returns the current view model rows.
func (v *View) Rows() []Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Row, len(v.rows))
	copy(out, v.rows)
	return out
}

// Online returns the current online-user count.
func (v *View) Online() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.online
}

// SetDraft replaces the input buffer.
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.mu.Unlock()
}

// Draft returns the current input buffer.
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// StageReply stages a message id as the reply target for the next send.
func (v *View) StageReply(id string) {
	v.mu.Lock()
	v.replyTo = id
	v.mu.Unlock()
}

// ClearReply unstages the reply target.
func (v *View) ClearReply() {
	v.mu.Lock()
	v.replyTo = ""
	v.mu.Unlock()
}

// StagedReply returns the staged reply target id, or "".
func (v *View) StagedReply() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replyTo
}

// Send submits the current draft. Whitespace-only drafts are silently
// dropped. The draft clears as soon as the submission is attempted,
// regardless of the outcome; the staged reply target clears only after a
// successful write. The timestamp is assigned by the store at commit time.
func (v *View) Send(ctx context.Context) error {
	account, ok := v.auth.CurrentAccount()
	if !ok {
		return nil // no identity, no write
	}

	v.mu.Lock()
	draft := v.draft
	replyTo := v.replyTo
	if strings.TrimSpace(draft) == "" {
		v.mu.Unlock()
		return nil
	}
	v.draft = ""
	v.mu.Unlock()

	name := v.displayName(ctx, account)

	fields := map[string]any{
		"text":      draft,
		"username":  name,
		"uid":       account.ID,
		"createdAt": docstore.ServerTimestamp,
	}
	if replyTo != "" {
		fields["replyTo"] = replyTo
	}

	start := time.Now()
	if _, err := v.store.Add(ctx, docstore.Messages, fields); err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		return fmt.Errorf("feed: send message: %w", err)
	}
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesSent.WithLabelValues("ok").Inc()

	v.mu.Lock()
	v.replyTo = ""
	v.mu.Unlock()
	return nil
}

// displayName resolves the sender's name: the cached profile username, then
// the user document, then the account email as the fallback of record.
func (v *View) displayName(ctx context.Context, account auth.Account) string {
	v.mu.Lock()
	cached := v.cachedName
	v.mu.Unlock()
	if cached != "" {
		return cached
	}

	doc, err := v.store.Get(ctx, docstore.Users, account.ID)
	if err == nil {
		if name := doc.String("username"); name != "" {
			v.mu.Lock()
			v.cachedName = name
			v.mu.Unlock()
			return name
		}
	} else if !errors.Is(err, docstore.ErrNotFound) {
		log.Printf("[feed] profile lookup for %s: %v", account.ID, err)
	}
	return account.Email
}

// applyMessages handles a messages-collection snapshot: decode, project,
// annotate settled reply contexts, and kick off lookups for the rest.
func (v *View) applyMessages(docs []docstore.Document) {
	metrics.SnapshotsApplied.WithLabelValues(docstore.Messages).Inc()

	account, _ := v.auth.CurrentAccount()
	msgs := DecodeMessages(docs)

	v.mu.Lock()
	v.rows = v.annotateLocked(Project(msgs, account.ID, v.loc))
	fn := v.onUpdate
	v.mu.Unlock()

	for _, msg := range msgs {
		if msg.ReplyToID == "" {
			continue
		}
		if _, ok := v.resolver.Settled(msg.ReplyToID); !ok {
			v.resolver.Resolve(msg.ReplyToID, v.replySettled)
		}
	}

	if fn != nil {
		fn()
	}
}

// applyPresence handles a users-collection snapshot. The current user's own
// document rides the same snapshot, so the cached display name follows
// renames instead of sticking to the first lookup.
func (v *View) applyPresence(docs []docstore.Document) {
	metrics.SnapshotsApplied.WithLabelValues(docstore.Users).Inc()
	online := CountOnline(DecodePresenceRecords(docs))
	metrics.OnlineUsers.Set(float64(online))

	account, signedIn := v.auth.CurrentAccount()

	v.mu.Lock()
	v.online = online
	if signedIn {
		for _, doc := range docs {
			if doc.ID == account.ID {
				v.cachedName = doc.String("username")
				break
			}
		}
	}
	fn := v.onUpdate
	v.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// replySettled updates, in place, every row whose message replies to the
// settled target. Row order never changes here.
func (v *View) replySettled(id string, rc *ReplyContext) {
	if rc == nil {
		return // permanent miss: rows keep rendering without context
	}

	v.mu.Lock()
	for i := range v.rows {
		if v.rows[i].Kind == RowMessage && v.rows[i].Msg.ReplyToID == id {
			v.rows[i].Reply = rc
		}
	}
	fn := v.onUpdate
	v.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// annotateLocked fills reply contexts already settled by the resolver.
// Caller must hold v.mu.
func (v *View) annotateLocked(rows []Row) []Row {
	for i := range rows {
		if rows[i].Kind != RowMessage || rows[i].Msg.ReplyToID == "" {
			continue
		}
		if rc, ok := v.resolver.Settled(rows[i].Msg.ReplyToID); ok && rc != nil {
			rows[i].Reply = rc
		}
	}
	return rows
}

// writePresence stamps the user's presence record. Failures are logged and
// swallowed; a missing user document (no profile yet) is created.
func (v *View) writePresence(ctx context.Context, account auth.Account, online bool) {
	fields := map[string]any{
		"isOnline":     online,
		"lastActiveAt": docstore.ServerTimestamp,
	}

	err := v.store.Update(ctx, docstore.Users, account.ID, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		fields["uid"] = account.ID
		fields["email"] = account.Email
		err = v.store.Set(ctx, docstore.Users, account.ID, fields)
	}
	if err != nil {
		log.Printf("[feed] presence write for %s (online=%v): %v", account.ID, online, err)
	}
}
