package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/logging"
	"github.com/anonto42/vidtube/backend/internal/middleware"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/views"
)

// Response is the envelope of every API response.
type Response struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Response{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// NewHTTPErrorHandler returns the echo error boundary. Every error leaving a handler or
// a middleware is written as the failure envelope; causes of 5xx responses are logged
// and never sent to the client.
func NewHTTPErrorHandler(base *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		appErr := toAppError(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logError(logging.FromContext(c.Request().Context()), "request failed", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(appErr.HTTPStatus)
		} else {
			writeErr = respond(c, appErr.HTTPStatus, appErr.Message, nil)
		}
		if writeErr != nil && base != nil {
			base.Error("write error response", slog.Any("error", writeErr))
		}
	}
}

func toAppError(err error) *apperr.AppError {
	if ae := apperr.As(err); ae != nil {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code >= http.StatusInternalServerError {
			return apperr.Internal(err)
		}
		return &apperr.AppError{Code: codeForStatus(he.Code), Message: msg, HTTPStatus: he.Code, Cause: he.Internal}
	}
	return apperr.Internal(err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return apperr.CodeValidation
	case http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case http.StatusForbidden:
		return apperr.CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.CodeNotFound
	case http.StatusConflict:
		return apperr.CodeConflict
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	default:
		return apperr.CodeInternal
	}
}

// logError logs err with its oops code and context when it carries them.
func logError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, "error", err)
}

// currentUser returns the identity bound by the auth middleware.
func currentUser(c echo.Context) (*models.User, error) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		return nil, apperr.Unauthorized("Unauthorized request")
	}
	return user, nil
}

func objectIDParam(c echo.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(fmt.Sprintf("Invalid %s", name))
	}
	return id, nil
}

// pageRequest reads the page and limit query parameters.
func pageRequest(c echo.Context) (views.PageRequest, error) {
	page, err := int64Query(c, "page")
	if err != nil {
		return views.PageRequest{}, err
	}
	limit, err := int64Query(c, "limit")
	if err != nil {
		return views.PageRequest{}, err
	}
	req := views.NewPageRequest(page, limit)
	if _, err := req.Offset(); err != nil {
		return views.PageRequest{}, err
	}
	return req, nil
}

func int64Query(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

// bindAndValidate binds the request body into dst and runs the registered validator.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("Invalid request body").WithCause(err)
	}
	return c.Validate(dst)
}
