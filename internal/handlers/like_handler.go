package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/internal/views"
)

// LikedVideosView lists the videos an identity liked.
type LikedVideosView interface {
	LikedVideos(ctx context.Context, viewerID primitive.ObjectID) ([]views.LikedVideo, error)
}

// LikeHandler handles HTTP requests related to likes
type LikeHandler struct {
	likes    repositories.LikeRepository
	videos   repositories.VideoRepository
	comments repositories.CommentRepository
	views    LikedVideosView
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(likes repositories.LikeRepository, videos repositories.VideoRepository, comments repositories.CommentRepository, likedViews LikedVideosView) *LikeHandler {
	return &LikeHandler{
		likes:    likes,
		videos:   videos,
		comments: comments,
		views:    likedViews,
	}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/toggle/v/:videoId", h.ToggleVideoLike)
	g.POST("/toggle/c/:commentId", h.ToggleCommentLike)
	g.GET("/videos", h.LikedVideos)
}

// ToggleVideoLike likes the video, or removes the caller's like if present.
func (h *LikeHandler) ToggleVideoLike(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	videoID, err := objectIDParam(c, "videoId")
	if err != nil {
		return err
	}

	exists, err := h.videos.Exists(c.Request().Context(), videoID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !exists {
		return apperr.NotFound("Video")
	}
	return h.toggle(c, models.LikeTargetVideo, videoID, user.ID)
}

// ToggleCommentLike likes the comment, or removes the caller's like if present.
func (h *LikeHandler) ToggleCommentLike(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	commentID, err := objectIDParam(c, "commentId")
	if err != nil {
		return err
	}

	if _, err := h.comments.GetCommentByID(c.Request().Context(), commentID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Comment")
		}
		return apperr.Internal(err)
	}
	return h.toggle(c, models.LikeTargetComment, commentID, user.ID)
}

func (h *LikeHandler) toggle(c echo.Context, target models.LikeTarget, targetID, userID primitive.ObjectID) error {
	liked, err := h.likes.ToggleLike(c.Request().Context(), target, targetID, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	message := "Like removed successfully"
	if liked {
		message = "Liked successfully"
	}
	return respond(c, http.StatusOK, message, models.ToggleLikeResponse{IsLiked: liked})
}

// LikedVideos lists the videos the caller liked, newest like first.
func (h *LikeHandler) LikedVideos(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	liked, err := h.views.LikedVideos(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Liked videos fetched successfully", liked)
}
