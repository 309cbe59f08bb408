// Package session keeps the signed-in user in a cookie session.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// CookieName is the name of the session cookie.
const CookieName = "sheetflow_session"

const userIDKey = "uid"

// ErrNoSession is returned when a request carries no signed-in user.
var ErrNoSession = errors.New("no session")

// Options configure the session cookie.
type Options struct {
	Secret string
	MaxAge int // seconds
	Secure bool
}

// Manager reads and writes the session cookie.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a session manager signing cookies with opts.Secret.
func NewManager(opts Options) *Manager {
	key := sha256.Sum256([]byte(opts.Secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store}
}

// Login records userID in the session and writes the cookie.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, _ := m.store.Get(r, CookieName)
	sess.Values[userIDKey] = userID
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Logout expires the session cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, CookieName)
	delete(sess.Values, userIDKey)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// UserID returns the signed-in user of r. Tampered or expired cookies
// count as no session.
func (m *Manager) UserID(r *http.Request) (string, error) {
	sess, err := m.store.Get(r, CookieName)
	if err != nil {
		return "", ErrNoSession
	}
	id, ok := sess.Values[userIDKey].(string)
	if !ok || id == "" {
		return "", ErrNoSession
	}
	return id, nil
}
