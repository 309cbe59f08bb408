// Package auth signs users in with a password and authenticates requests
// by bearer token or session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials covers unknown passwords for known emails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassword is returned when a new account's password is too short.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// UserStore is the part of storage.Store used to sign users in.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// Credentials is a login attempt. Profile fields are optional and update
// the stored profile when present.
type Credentials struct {
	Email           string
	Password        string
	FirstName       *string
	LastName        *string
	ProfileImageURL *string
}

// Authenticator creates users on first login and checks passwords after.
type Authenticator struct {
	users UserStore
	cost  int
}

// NewAuthenticator creates an Authenticator. cost 0 means bcrypt.DefaultCost.
func NewAuthenticator(users UserStore, cost int) *Authenticator {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Authenticator{users: users, cost: cost}
}

// Login returns the user for creds, creating the account if the email is
// new. The returned bool reports whether the user was created.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (*models.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	existing, err := a.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return a.register(ctx, email, creds)
	case err != nil:
		return nil, false, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(existing.PasswordHash, []byte(creds.Password)); err != nil {
		return nil, false, ErrInvalidCredentials
	}

	if !applyProfile(existing, creds) {
		return existing, false, nil
	}
	updated, err := a.users.UpsertUser(ctx, existing)
	if err != nil {
		return nil, false, fmt.Errorf("updating user: %w", err)
	}
	return updated, false, nil
}

func (a *Authenticator) register(ctx context.Context, email string, creds Credentials) (*models.User, bool, error) {
	if len(creds.Password) < MinPasswordLength {
		return nil, false, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), a.cost)
	if err != nil {
		return nil, false, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: hash}
	applyProfile(user, creds)
	created, err := a.users.UpsertUser(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("creating user: %w", err)
	}
	return created, true, nil
}

// applyProfile copies the profile fields that were sent onto u and reports
// whether anything changed.
func applyProfile(u *models.User, creds Credentials) bool {
	changed := false
	set := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	set(&u.FirstName, creds.FirstName)
	set(&u.LastName, creds.LastName)
	set(&u.ProfileImageURL, creds.ProfileImageURL)
	return changed
}
