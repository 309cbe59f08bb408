package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ContextKey is the echo context key holding the authenticated user id.
const ContextKey = "auth.userID"

// SessionReader resolves the user of a cookie session.
type SessionReader interface {
	UserID(r *http.Request) (string, error)
}

// RequireAuth accepts a valid bearer token or session cookie and stores the
// user id under ContextKey. Anything else is answered with 401.
func RequireAuth(tokens *Tokens, sessions SessionReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
				raw, ok := strings.CutPrefix(h, "Bearer ")
				if !ok {
					return unauthorized(c)
				}
				id, err := tokens.Verify(strings.TrimSpace(raw))
				if err != nil {
					return unauthorized(c)
				}
				c.Set(ContextKey, id)
				return next(c)
			}

			if sessions != nil {
				if id, err := sessions.UserID(c.Request()); err == nil {
					c.Set(ContextKey, id)
					return next(c)
				}
			}
			return unauthorized(c)
		}
	}
}

// UserID returns the user id set by RequireAuth.
func UserID(c echo.Context) string {
	id, _ := c.Get(ContextKey).(string)
	return id
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
}
