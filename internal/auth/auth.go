// Package auth implements the authentication collaborator: email/password
// accounts with bcrypt-hashed credentials in the document store, JWT session
// tokens, and auth-change notifications fired on every login/logout
// transition.
package auth

import "context"

// Account identifies a signed-in user. DisplayName mirrors the profile
// username once one is claimed; it is empty for fresh accounts.
type Account struct {
	ID          string // stable account id, assigned at sign-up
	Email       string
	DisplayName string
}

// Callback receives every auth transition. signedIn is true after a
// successful sign-in or sign-up, false after sign-out.
type Callback func(account Account, signedIn bool)

// Cancel deregisters an auth-change callback.
type Cancel func()

// Service is the authentication collaborator interface.
type Service interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context) error
	CurrentAccount() (Account, bool)
	SetDisplayName(ctx context.Context, name string) error
	OnAuthChange(fn Callback) Cancel
}
