// Package auth provides the identity registry (bcrypt credentials) and the
// cookie session provider used by the HTTP surface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"formcore/pkg/domain"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds. bcrypt refuses input longer than 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// ErrInvalidCredentials is returned by Authenticate for any unknown user or
// wrong password.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", domain.ErrValidation)

// Registry creates and verifies identities stored in the record store.
type Registry struct {
	store domain.PersistentStore
	cost  int
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithBcryptCost overrides the hashing cost. Values outside the bcrypt range
// fall back to the default.
func WithBcryptCost(cost int) RegistryOption {
	return func(r *Registry) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			r.cost = cost
		}
	}
}

// NewRegistry constructs a registry over store.
func NewRegistry(store domain.PersistentStore, opts ...RegistryOption) *Registry {
	r := &Registry{store: store, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateIdentity registers a new user. Username and email must be unique;
// email comparison ignores case.
func (r *Registry) CreateIdentity(ctx context.Context, username, email, password, confirm string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = domain.NormalizeEmail(email)
	var errs []error
	if username == "" {
		errs = append(errs, domain.ValidationError{Field: "username", Code: domain.CodeRequired, Message: "username is required"})
	}
	if email == "" {
		errs = append(errs, domain.ValidationError{Field: "email", Code: domain.CodeRequired, Message: "email is required"})
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs = append(errs, domain.ValidationError{Field: "email", Code: domain.CodeInvalid, Message: "email is not a valid address"})
	}
	if len(password) < MinPasswordLength {
		errs = append(errs, domain.ValidationError{Field: "password", Code: domain.CodeInvalid, Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)})
	} else if len(password) > MaxPasswordLength {
		errs = append(errs, domain.ValidationError{Field: "password", Code: domain.CodeInvalid, Message: fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength)})
	}
	if password != confirm {
		errs = append(errs, domain.ValidationError{Field: "password_confirm", Code: domain.CodeMismatch, Message: "passwords do not match"})
	}
	if err := errors.Join(errs...); err != nil {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	var user domain.User
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		user, txErr = tx.CreateUser(domain.User{Username: username, Email: email, PasswordHash: string(hash)})
		return txErr
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate verifies a username/password pair.
func (r *Registry) Authenticate(ctx context.Context, username, password string) (domain.Identity, error) {
	var user domain.User
	var found bool
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		user, found = v.FindUserByUsername(strings.TrimSpace(username))
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if !found {
		return domain.Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return domain.IdentityOf(user), nil
}

// Lookup resolves a user ID to its identity. Unknown IDs are anonymous.
func (r *Registry) Lookup(ctx context.Context, userID string) (domain.Identity, error) {
	if userID == "" {
		return domain.Anonymous(), nil
	}
	var id domain.Identity
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		if u, ok := v.FindUser(userID); ok {
			id = domain.IdentityOf(u)
		}
		return nil
	})
	return id, err
}
