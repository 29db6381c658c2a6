package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/apperror"
)

const (
	// UserIDKey is the echo context key holding the authenticated user ID.
	UserIDKey = "user_id"
	// UserRoleKey is the echo context key holding the authenticated role.
	UserRoleKey = "user_role"
)

// RequireAuth returns middleware that rejects requests without a valid
// Bearer access token and stores the caller's identity on the context.
func RequireAuth(tm *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperror.Unauthorized("No token provided")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return apperror.Unauthorized("No token provided")
			}

			claims, err := tm.Parse(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return apperror.Unauthorized("Token expired")
				}
				return apperror.Unauthorized("Invalid token")
			}
			if claims.TokenType != TokenTypeAccess {
				return apperror.Unauthorized("Invalid token")
			}

			c.Set(UserIDKey, claims.Subject)
			c.Set(UserRoleKey, claims.Role)

			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated user ID set by RequireAuth.
func UserIDFromContext(c echo.Context) string {
	uid, _ := c.Get(UserIDKey).(string)
	return uid
}

// RoleFromContext returns the authenticated role set by RequireAuth.
func RoleFromContext(c echo.Context) string {
	role, _ := c.Get(UserRoleKey).(string)
	return role
}

// RequireRole returns middleware that allows only callers whose role is one
// of the given roles. It must run after RequireAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c)
			for _, allowed := range roles {
				if role == allowed {
					return next(c)
				}
			}
			return apperror.Forbidden("Not authorized to access this route")
		}
	}
}
