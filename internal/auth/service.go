package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fireside/chat-app/internal/docstore"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. Shown inline to the user; it clears on the next attempt.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrEmailInUse is returned when signing up with an email that already
	// has an account.
	ErrEmailInUse = errors.New("auth: email is already in use")

	// ErrNotAuthenticated guards operations that need a signed-in account.
	ErrNotAuthenticated = errors.New("auth: not authenticated")
)

// DocService implements Service on top of the document store. Accounts live
// in the "accounts" collection keyed by lowercased email. The existence
// check on sign-up and the subsequent write are two separate calls, so two
// concurrent sign-ups with the same email can race; the store serializes the
// writes but the last one wins. Same known gap as the username claim.
type DocService struct {
	store      docstore.Store
	signingKey []byte

	mu        sync.Mutex
	current   *Account
	token     string
	callbacks map[int]Callback
	nextCB    int
}

// NewDocService creates an auth service over the given store. signingKey
// signs session tokens and must not be empty.
func NewDocService(store docstore.Store, signingKey []byte) *DocService {
	return &DocService{
		store:      store,
		signingKey: signingKey,
		callbacks:  make(map[int]Callback),
	}
}

// SignUp creates an account and signs it in, returning the new account id.
func (s *DocService) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	_, err := s.store.Get(ctx, docstore.Accounts, email)
	if err == nil {
		return "", ErrEmailInUse
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return "", fmt.Errorf("auth: sign up: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}

	uid := uuid.NewString()
	err = s.store.Set(ctx, docstore.Accounts, email, map[string]any{
		"uid":          uid,
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("auth: sign up: %w", err)
	}

	if err := s.establish(Account{ID: uid, Email: email}); err != nil {
		return "", err
	}
	log.Printf("[auth] signed up account=%s", uid)
	return uid, nil
}

// SignIn verifies credentials and establishes the session, returning the
// account id.
func (s *DocService) SignIn(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)

	doc, err := s.store.Get(ctx, docstore.Accounts, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("auth: sign in: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(doc.String("passwordHash")), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	uid := doc.String("uid")
	account := Account{ID: uid, Email: email, DisplayName: doc.String("displayName")}
	if err := s.establish(account); err != nil {
		return "", err
	}
	log.Printf("[auth] signed in account=%s", uid)
	return uid, nil
}

// SetDisplayName stamps the chosen profile name onto the signed-in account,
// both in the accounts document and in the live session.
func (s *DocService) SetDisplayName(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	email := s.current.Email
	s.mu.Unlock()

	err := s.store.Update(ctx, docstore.Accounts, email, map[string]any{"displayName": name})
	if err != nil {
		return fmt.Errorf("auth: set display name: %w", err)
	}

	s.mu.Lock()
	if s.current != nil && s.current.Email == email {
		s.current.DisplayName = name
	}
	s.mu.Unlock()
	return nil
}

// SignOut tears down the current session. A no-op when nobody is signed in.
func (s *DocService) SignOut(context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil
	}
	account := *s.current
	s.current = nil
	s.token = ""
	cbs := s.snapshotCallbacks()
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(account, false)
	}
	log.Printf("[auth] signed out account=%s", account.ID)
	return nil
}

// CurrentAccount returns the signed-in account, if any.
func (s *DocService) CurrentAccount() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Account{}, false
	}
	return *s.current, true
}

// Token returns the current session's JWT, or "" when signed out.
func (s *DocService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnAuthChange registers a callback fired on every login/logout transition.
// The returned Cancel deregisters it; a cancelled callback never fires again.
func (s *DocService) OnAuthChange(fn Callback) Cancel {
	s.mu.Lock()
	id := s.nextCB
	s.nextCB++
	s.callbacks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

func (s *DocService) establish(account Account) error {
	token, err := newSessionToken(account.ID, s.signingKey)
	if err != nil {
		return fmt.Errorf("auth: session token: %w", err)
	}

	s.mu.Lock()
	s.current = &account
	s.token = token
	cbs := s.snapshotCallbacks()
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(account, true)
	}
	return nil
}

// snapshotCallbacks copies the callback list so it can be invoked outside
// the lock. Caller must hold s.mu.
func (s *DocService) snapshotCallbacks() []Callback {
	cbs := make([]Callback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
