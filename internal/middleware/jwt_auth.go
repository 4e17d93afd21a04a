package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/logging"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
)

// Cookie names of the session tokens.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// userKey is the echo context key of the authenticated identity.
const userKey = "user"

type identityCtxKey struct{}

// TokenVerifier verifies signed tokens.
type TokenVerifier interface {
	Verify(raw string, kind auth.TokenKind) (*auth.Claims, error)
}

// IdentityLoader loads an identity without its credential fields.
type IdentityLoader interface {
	GetPublicUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// JWTAuthMiddleware authenticates a request from the accessToken cookie or the
// Authorization bearer header and binds the identity to the request. Every failure is
// a generic 401; the reason is only logged.
func JWTAuthMiddleware(tokens TokenVerifier, users IdentityLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			logger := logging.FromContext(ctx)

			raw := extractToken(c)
			if raw == "" {
				return apperr.Unauthorized("Unauthorized request")
			}

			claims, err := tokens.Verify(raw, auth.KindAccess)
			if err != nil {
				logger.DebugContext(ctx, "access token rejected", slog.Any("error", err))
				return apperr.Unauthorized("Invalid access token")
			}

			id, err := primitive.ObjectIDFromHex(claims.IdentityID())
			if err != nil {
				logger.WarnContext(ctx, "access token subject is not an object id", slog.String("sub", claims.IdentityID()))
				return apperr.Unauthorized("Invalid access token")
			}

			user, err := users.GetPublicUserByID(ctx, id)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					logger.InfoContext(ctx, "access token for a deleted identity", slog.String("identity_id", id.Hex()))
					return apperr.Unauthorized("Invalid access token")
				}
				return apperr.Internal(err)
			}

			c.Set(userKey, user)
			c.SetRequest(c.Request().WithContext(context.WithValue(ctx, identityCtxKey{}, user)))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserFromContext returns the identity bound by JWTAuthMiddleware.
func UserFromContext(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(userKey).(*models.User)
	return user, ok && user != nil
}

// IdentityFromContext returns the identity bound to a request context.
func IdentityFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(identityCtxKey{}).(*models.User)
	return user, ok && user != nil
}
