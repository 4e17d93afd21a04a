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
)

// CommentsView pages through a video's comments.
type CommentsView interface {
	CommentsForVideo(ctx context.Context, videoID, viewerID primitive.ObjectID, req views.PageRequest) (*views.Page[views.CommentView], error)
}

// CommentLikeRemover deletes the likes of a comment.
type CommentLikeRemover interface {
	DeleteByComment(ctx context.Context, commentID primitive.ObjectID) (int64, error)
}

// CommentHandler handles HTTP requests related to comments
type CommentHandler struct {
	comments repositories.CommentRepository
	likes    CommentLikeRemover
	videos   repositories.VideoRepository
	views    CommentsView
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(comments repositories.CommentRepository, likes CommentLikeRemover, videos repositories.VideoRepository, commentsView CommentsView) *CommentHandler {
	return &CommentHandler{
		comments: comments,
		likes:    likes,
		videos:   videos,
		views:    commentsView,
	}
}

// RegisterCommentRoutes registers comment-related routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.GET("/:videoId", h.GetVideoComments)
	g.POST("/:videoId", h.AddComment)
	g.PATCH("/c/:commentId", h.UpdateComment)
	g.DELETE("/c/:commentId", h.DeleteComment)
}

// GetVideoComments pages through a video's comments, newest first.
func (h *CommentHandler) GetVideoComments(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	videoID, err := objectIDParam(c, "videoId")
	if err != nil {
		return err
	}
	req, err := pageRequest(c)
	if err != nil {
		return err
	}
	if err := h.requireVideo(c.Request().Context(), videoID); err != nil {
		return err
	}

	page, err := h.views.CommentsForVideo(c.Request().Context(), videoID, user.ID, req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Comments fetched successfully", page)
}

// AddComment creates a comment on a video.
func (h *CommentHandler) AddComment(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	videoID, err := objectIDParam(c, "videoId")
	if err != nil {
		return err
	}
	var req models.CommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return apperr.Validation("content is required")
	}
	if err := h.requireVideo(ctx, videoID); err != nil {
		return err
	}

	comment := &models.Comment{
		Video:   videoID,
		Owner:   user.ID,
		Content: content,
	}
	if err := h.comments.CreateComment(ctx, comment); err != nil {
		return apperr.Internal(err)
	}
	return respond(c, http.StatusCreated, "Comment added successfully", comment)
}

// UpdateComment edits the content of one of the caller's comments.
func (h *CommentHandler) UpdateComment(c echo.Context) error {
	ctx := c.Request().Context()
	comment, err := h.ownedComment(c)
	if err != nil {
		return err
	}
	var req models.CommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return apperr.Validation("content is required")
	}

	updated, err := h.comments.UpdateContent(ctx, comment.ID, content)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Comment")
		}
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, "Comment updated successfully", updated)
}

// DeleteComment removes one of the caller's comments together with its likes.
func (h *CommentHandler) DeleteComment(c echo.Context) error {
	ctx := c.Request().Context()
	comment, err := h.ownedComment(c)
	if err != nil {
		return err
	}

	if _, err := h.likes.DeleteByComment(ctx, comment.ID); err != nil {
		return apperr.Internal(err)
	}
	if err := h.comments.DeleteComment(ctx, comment.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Comment")
		}
		return apperr.Internal(err)
	}
	return respond(c, http.StatusOK, "Comment deleted successfully", struct{}{})
}

// ownedComment loads the :commentId comment and checks the caller owns it.
func (h *CommentHandler) ownedComment(c echo.Context) (*models.Comment, error) {
	user, err := currentUser(c)
	if err != nil {
		return nil, err
	}
	commentID, err := objectIDParam(c, "commentId")
	if err != nil {
		return nil, err
	}

	comment, err := h.comments.GetCommentByID(c.Request().Context(), commentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("Comment")
		}
		return nil, apperr.Internal(err)
	}
	if comment.Owner != user.ID {
		return nil, apperr.Forbidden("Only the owner can change this comment")
	}
	return comment, nil
}

func (h *CommentHandler) requireVideo(ctx context.Context, videoID primitive.ObjectID) error {
	exists, err := h.videos.Exists(ctx, videoID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !exists {
		return apperr.NotFound("Video")
	}
	return nil
}
