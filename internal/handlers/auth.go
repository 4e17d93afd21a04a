package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/auth"
	"github.com/anonto42/vidtube/backend/internal/logging"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/pkg/storage"
)

// Media folders.
const (
	folderAvatars = "avatars"
	folderCovers  = "covers"
)

// SessionService is the part of the session manager the HTTP layer drives.
type SessionService interface {
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	Refresh(ctx context.Context, presented string) (*auth.Session, error)
	Logout(ctx context.Context, identityID primitive.ObjectID) error
	ChangePassword(ctx context.Context, identityID primitive.ObjectID, oldPlaintext, newPlaintext string) error
}

// CookieConfig controls the session cookies.
type CookieConfig struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (cc CookieConfig) cookie(name, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	// browsers drop SameSite=None cookies that are not Secure
	if cc.Secure {
		ck.SameSite = http.SameSiteNoneMode
	}
	if value == "" {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

func (cc CookieConfig) set(c echo.Context, s *auth.Session) {
	c.SetCookie(cc.cookie(middleware.AccessTokenCookie, s.AccessToken, cc.AccessTTL))
	c.SetCookie(cc.cookie(middleware.RefreshTokenCookie, s.RefreshToken, cc.RefreshTTL))
}

func (cc CookieConfig) clear(c echo.Context) {
	c.SetCookie(cc.cookie(middleware.AccessTokenCookie, "", 0))
	c.SetCookie(cc.cookie(middleware.RefreshTokenCookie, "", 0))
}

// AuthHandler handles registration and the session lifecycle.
type AuthHandler struct {
	users    repositories.UserRepository
	sessions SessionService
	hasher   auth.PasswordHasher
	media    storage.MediaStore
	cookies  CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(users repositories.UserRepository, sessions SessionService, hasher auth.PasswordHasher, media storage.MediaStore, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		media:    media,
		cookies:  cookies,
	}
}

// RegisterPublicRoutes registers the routes that need no session. limited wraps the
// credential endpoints with the login rate limiter.
func (h *AuthHandler) RegisterPublicRoutes(g *echo.Group, limited ...echo.MiddlewareFunc) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login, limited...)
	g.POST("/refresh-token", h.RefreshToken, limited...)
}

// RegisterSessionRoutes registers the routes that act on the caller's own session.
func (h *AuthHandler) RegisterSessionRoutes(g *echo.Group) {
	g.POST("/logout", h.Logout)
	g.POST("/change-password", h.ChangePassword)
}

// Register creates an identity from a multipart form with a required avatar and an
// optional cover image.
func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RegisterUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := h.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return apperr.Internal(err)
	}
	if exists {
		return apperr.Conflict("User with email or username already exists")
	}

	avatar, err := uploadFormFile(c, h.media, "avatar", folderAvatars, true)
	if err != nil {
		return err
	}
	cover, err := uploadFormFile(c, h.media, "coverImage", folderCovers, false)
	if err != nil {
		discardAssets(ctx, h.media, avatar)
		return err
	}

	digest, err := h.hasher.Hash(req.Password)
	if err != nil {
		discardAssets(ctx, h.media, avatar, cover)
		return err
	}

	user := &models.User{
		Username:   req.Username,
		Email:      req.Email,
		FullName:   strings.TrimSpace(req.FullName),
		Avatar:     avatar,
		CoverImage: cover,
		Password:   digest,
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		discardAssets(ctx, h.media, avatar, cover)
		if errors.Is(err, repositories.ErrDuplicate) {
			return apperr.Conflict("User with email or username already exists")
		}
		return apperr.Internal(err)
	}

	created, err := h.users.GetPublicUserByID(ctx, user.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	return respond(c, http.StatusCreated, "User registered successfully", created)
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.sessions.Login(c.Request().Context(), auth.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	h.cookies.set(c, session)
	return respond(c, http.StatusOK, "User logged in successfully", session)
}

// Logout revokes the caller's refresh token and clears the session cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Logout(c.Request().Context(), user.ID); err != nil {
		return err
	}
	h.cookies.clear(c)
	return respond(c, http.StatusOK, "User logged out", struct{}{})
}

// RefreshToken rotates the token pair. The refresh token is read from its cookie or,
// for clients without cookies, from the request body.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	presented := ""
	if ck, err := c.Cookie(middleware.RefreshTokenCookie); err == nil {
		presented = ck.Value
	}
	if presented == "" {
		var req models.RefreshRequest
		if err := c.Bind(&req); err != nil {
			return apperr.Validation("Invalid request body").WithCause(err)
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}

	session, err := h.sessions.Refresh(c.Request().Context(), presented)
	if err != nil {
		return err
	}
	h.cookies.set(c, session)
	return respond(c, http.StatusOK, "Access token refreshed", map[string]string{
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
	})
}

// ChangePassword replaces the caller's password after verifying the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.sessions.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password changed successfully", struct{}{})
}

// uploadFormFile stores the multipart file of the given field. A missing optional file
// yields a zero Asset.
func uploadFormFile(c echo.Context, media storage.MediaStore, field, folder string, required bool) (models.Asset, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if required {
			return models.Asset{}, apperr.Validation(field + " file is required").WithCause(err)
		}
		return models.Asset{}, nil
	}

	f, err := fh.Open()
	if err != nil {
		return models.Asset{}, apperr.Validation("Unreadable " + field + " file").WithCause(err)
	}
	defer f.Close()

	obj, err := media.Upload(c.Request().Context(), folder, fh.Filename, f, fh.Header.Get(echo.HeaderContentType))
	if err != nil {
		return models.Asset{}, apperr.Internal(err)
	}
	return models.Asset{PublicID: obj.Key, URL: obj.URL}, nil
}

// discardAssets deletes uploaded objects that will not be referenced. Failures are
// logged only.
func discardAssets(ctx context.Context, media storage.MediaStore, assets ...models.Asset) {
	for _, a := range assets {
		if a.PublicID == "" {
			continue
		}
		if err := media.Delete(ctx, a.PublicID); err != nil {
			logging.FromContext(ctx).WarnContext(ctx, "media object not deleted",
				slog.String("key", a.PublicID),
				slog.Any("error", err),
			)
		}
	}
}
