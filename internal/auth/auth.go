// Package auth verifies usernames and secrets against stored bcrypt hashes.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/crev/internal/models"
)

// UserLookup finds a user by name.
type UserLookup interface {
	GetUserByName(ctx context.Context, username string) (*models.User, error)
}

// HashSecret returns the bcrypt hash stored for a new user.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty secret: %w", models.ErrInvalidInput)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// Authenticator checks credentials.
type Authenticator struct {
	users UserLookup
}

// New creates an Authenticator backed by users.
func New(users UserLookup) *Authenticator {
	return &Authenticator{users: users}
}

// Verify returns the user when secret matches. Unknown usernames and wrong
// secrets both yield ErrUnauthenticated.
func (a *Authenticator) Verify(ctx context.Context, username, secret string) (*models.User, error) {
	u, err := a.users.GetUserByName(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %q: %w", username, models.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)); err != nil {
		return nil, fmt.Errorf("bad credentials for %q: %w", username, models.ErrUnauthenticated)
	}
	return u, nil
}
