package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/internal/views"
)

// SubscriptionViews are the relational views behind the subscription routes.
type SubscriptionViews interface {
	Subscribers(ctx context.Context, channelID primitive.ObjectID, req views.PageRequest) (*views.Page[views.Subscriber], error)
	SubscribedChannels(ctx context.Context, viewerID primitive.ObjectID) ([]views.SubscribedChannel, error)
}

// SubscriptionHandler handles subscribe/unsubscribe HTTP requests
type SubscriptionHandler struct {
	subscriptions repositories.SubscriptionRepository
	channels      middleware.IdentityLoader
	views         SubscriptionViews
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions repositories.SubscriptionRepository, channels middleware.IdentityLoader, subscriptionViews SubscriptionViews) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		channels:      channels,
		views:         subscriptionViews,
	}
}

// RegisterSubscriptionRoutes registers subscription-related routes
func (h *SubscriptionHandler) RegisterSubscriptionRoutes(g *echo.Group) {
	g.POST("/c/:channelId", h.ToggleSubscription)
	g.GET("/c/:channelId", h.GetChannelSubscribers)
	g.GET("/u/channels", h.GetSubscribedChannels)
}

// ToggleSubscription subscribes the caller to a channel, or unsubscribes if already subscribed.
func (h *SubscriptionHandler) ToggleSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	channelID, err := objectIDParam(c, "channelId")
	if err != nil {
		return err
	}
	if channelID == user.ID {
		return apperr.Validation("You cannot subscribe to your own channel")
	}

	if _, err := h.channels.GetPublicUserByID(ctx, channelID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Channel")
		}
		return apperr.Internal(err)
	}

	subscribed, err := h.subscriptions.ToggleSubscription(ctx, user.ID, channelID)
	if err != nil {
		return apperr.Internal(err)
	}
	message := "Unsubscribed successfully"
	if subscribed {
		message = "Subscribed successfully"
	}
	return respond(c, http.StatusOK, message, models.ToggleSubscriptionResponse{Subscribed: subscribed})
}

// GetChannelSubscribers pages through a channel's subscribers, newest first.
func (h *SubscriptionHandler) GetChannelSubscribers(c echo.Context) error {
	channelID, err := objectIDParam(c, "channelId")
	if err != nil {
		return err
	}
	req, err := pageRequest(c)
	if err != nil {
		return err
	}
	page, err := h.views.Subscribers(c.Request().Context(), channelID, req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Subscribers fetched successfully", page)
}

// GetSubscribedChannels lists the channels the caller subscribes to.
func (h *SubscriptionHandler) GetSubscribedChannels(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	channels, err := h.views.SubscribedChannels(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Subscribed channels fetched successfully", channels)
}
