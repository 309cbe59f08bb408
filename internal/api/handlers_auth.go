// handlers_auth.go - Sign-in handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/session"
	"github.com/sheetflow/backend/internal/storage"
	"go.uber.org/zap"
)

// AuthHandlerImpl implements the AuthHandler interface
type AuthHandlerImpl struct {
	store    storage.Store
	authn    *auth.Authenticator
	tokens   *auth.Tokens
	sessions *session.Manager
	log      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store storage.Store, authn *auth.Authenticator, tokens *auth.Tokens, sessions *session.Manager, log *zap.Logger) AuthHandler {
	return &AuthHandlerImpl{
		store:    store,
		authn:    authn,
		tokens:   tokens,
		sessions: sessions,
		log:      log,
	}
}

type loginRequest struct {
	Email           string  `json:"email" validate:"required,email,max=255"`
	Password        string  `json:"password" validate:"required"`
	FirstName       *string `json:"firstName" validate:"omitempty,max=255"`
	LastName        *string `json:"lastName" validate:"omitempty,max=255"`
	ProfileImageURL *string `json:"profileImageUrl" validate:"omitempty,url,max=1024"`
}

type loginResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// HandleLogin signs a user in, creating the account on first login. It
// sets the session cookie and returns a bearer token.
func (h *AuthHandlerImpl) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, created, err := h.authn.Login(c.Request().Context(), auth.Credentials{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		ProfileImageURL: req.ProfileImageURL,
	})
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		return NewFieldError("password", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return NewUnauthorizedError("invalid email or password")
	case err != nil:
		return NewInternalError("failed to sign in", err)
	}

	if err := h.sessions.Login(c.Response(), c.Request(), user.ID); err != nil {
		return NewInternalError("failed to start session", err)
	}
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		return NewInternalError("failed to issue token", err)
	}

	h.log.Info("user signed in", zap.String("user_id", user.ID), zap.Bool("created", created))
	return c.JSON(http.StatusOK, loginResponse{User: user, Token: token})
}

// HandleLogout clears the session cookie.
func (h *AuthHandlerImpl) HandleLogout(c echo.Context) error {
	if err := h.sessions.Logout(c.Response(), c.Request()); err != nil {
		return NewInternalError("failed to end session", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetUser returns the authenticated user.
func (h *AuthHandlerImpl) HandleGetUser(c echo.Context) error {
	id := auth.UserID(c)
	user, err := h.store.GetUser(c.Request().Context(), id)
	if err != nil {
		return storeError(err, "user", id, "failed to fetch user")
	}
	return c.JSON(http.StatusOK, user)
}
