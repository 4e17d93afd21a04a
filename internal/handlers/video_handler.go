package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/repositories"
)

// WatchHistoryWriter appends videos to an identity's watch history.
type WatchHistoryWriter interface {
	PushWatchHistory(ctx context.Context, id, videoID primitive.ObjectID) error
}

// VideoHandler handles HTTP requests related to videos
type VideoHandler struct {
	videos  repositories.VideoRepository
	history WatchHistoryWriter
}

// NewVideoHandler creates a new VideoHandler
func NewVideoHandler(videos repositories.VideoRepository, history WatchHistoryWriter) *VideoHandler {
	return &VideoHandler{videos: videos, history: history}
}

// RegisterVideoRoutes registers video-related routes
func (h *VideoHandler) RegisterVideoRoutes(g *echo.Group) {
	g.GET("/:videoId", h.GetVideo)
}

// GetVideo returns a video, counts the view and records it in the caller's watch
// history. Unpublished videos are only visible to their owner.
func (h *VideoHandler) GetVideo(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	videoID, err := objectIDParam(c, "videoId")
	if err != nil {
		return err
	}

	video, err := h.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Video")
		}
		return apperr.Internal(err)
	}
	if !video.IsPublished && video.Owner != user.ID {
		return apperr.NotFound("Video")
	}

	video, err = h.videos.IncrementViews(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Video")
		}
		return apperr.Internal(err)
	}
	if err := h.history.PushWatchHistory(ctx, user.ID, videoID); err != nil {
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, "Video fetched successfully", video)
}
