package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/internal/views"
	"github.com/anonto42/vidtube/backend/pkg/storage"
)

// ProfileViews are the relational views behind the profile routes.
type ProfileViews interface {
	ChannelProfile(ctx context.Context, username string, viewerID primitive.ObjectID) (*views.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID primitive.ObjectID) ([]views.OwnedVideo, error)
}

// SessionEventLister lists an identity's session audit trail.
type SessionEventLister interface {
	ListByIdentity(ctx context.Context, identityID string, page, limit int) ([]models.SessionEvent, int64, error)
}

// UserHandler handles HTTP requests related to the caller's account and channels
type UserHandler struct {
	users  repositories.UserRepository
	media  storage.MediaStore
	views  ProfileViews
	events SessionEventLister // nil when no audit database is configured
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, media storage.MediaStore, profileViews ProfileViews, events SessionEventLister) *UserHandler {
	return &UserHandler{
		users:  users,
		media:  media,
		views:  profileViews,
		events: events,
	}
}

// RegisterProfileRoutes registers account and channel routes. All of them require a session.
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/current-user", h.CurrentUser)
	g.PATCH("/update-account", h.UpdateAccount)
	g.PATCH("/avatar", h.UpdateAvatar)
	g.PATCH("/cover-image", h.UpdateCoverImage)
	g.GET("/c/:username", h.ChannelProfile)
	g.GET("/history", h.WatchHistory)
	g.GET("/sessions", h.SessionHistory)
}

// CurrentUser returns the authenticated identity.
func (h *UserHandler) CurrentUser(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Current user fetched successfully", user)
}

// UpdateAccount changes the caller's full name and email.
func (h *UserHandler) UpdateAccount(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req models.UpdateAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.users.UpdateAccount(c.Request().Context(), user.ID,
		strings.TrimSpace(req.FullName), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicate):
			return apperr.Conflict("Email is already in use")
		case errors.Is(err, repositories.ErrNotFound):
			return apperr.NotFound("User")
		}
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, "Account details updated successfully", updated)
}

// UpdateAvatar replaces the caller's avatar.
func (h *UserHandler) UpdateAvatar(c echo.Context) error {
	return h.replaceAsset(c, "avatar", folderAvatars, repositories.FieldAvatar, "Avatar image updated successfully")
}

// UpdateCoverImage replaces the caller's cover image.
func (h *UserHandler) UpdateCoverImage(c echo.Context) error {
	return h.replaceAsset(c, "coverImage", folderCovers, repositories.FieldCoverImage, "Cover image updated successfully")
}

// replaceAsset uploads the new file, points the identity at it and then deletes the
// previous object. The old object is only removed once the new reference is stored.
func (h *UserHandler) replaceAsset(c echo.Context, formField, folder, field, message string) error {
	ctx := c.Request().Context()
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	asset, err := uploadFormFile(c, h.media, formField, folder, true)
	if err != nil {
		return err
	}

	previous, err := h.users.ReplaceAsset(ctx, user.ID, field, asset)
	if err != nil {
		discardAssets(ctx, h.media, asset)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("User")
		}
		return apperr.Internal(err)
	}
	discardAssets(ctx, h.media, previous)

	updated, err := h.users.GetPublicUserByID(ctx, user.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, message, updated)
}

// ChannelProfile returns a channel by handle, with subscription counts as seen by the caller.
func (h *UserHandler) ChannelProfile(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.views.ChannelProfile(c.Request().Context(), c.Param("username"), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User channel fetched successfully", profile)
}

// WatchHistory returns the videos the caller watched, most recent last.
func (h *UserHandler) WatchHistory(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	history, err := h.views.WatchHistory(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Watch history fetched successfully", history)
}

// SessionHistory pages through the caller's own session events, newest first.
func (h *UserHandler) SessionHistory(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	req, err := pageRequest(c)
	if err != nil {
		return err
	}
	if h.events == nil {
		return respond(c, http.StatusOK, "Session history fetched successfully", views.NewPage[models.SessionEvent](nil, 0, req))
	}

	events, total, err := h.events.ListByIdentity(c.Request().Context(), user.ID.Hex(), int(req.Page), int(req.Limit))
	if err != nil {
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, "Session history fetched successfully", views.NewPage(events, total, req))
}
