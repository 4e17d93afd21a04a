// Package apperr defines the error taxonomy shared by every layer of the API.
//
// Services return *AppError values; the HTTP error handler is the only place that
// turns them into status codes and the response envelope. The Cause is kept for
// server-side logs and is never serialized.
package apperr

import (
	"errors"
	"net/http"
)

// Machine-readable error codes.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidCredential = "INVALID_CREDENTIAL"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching is done on Code, so any AppError built by the
// constructors below matches the sentinel of the same kind.
var (
	ErrValidation        = &AppError{Code: CodeValidation}
	ErrInvalidCredential = &AppError{Code: CodeInvalidCredential}
	ErrUnauthorized      = &AppError{Code: CodeUnauthorized}
	ErrTokenExpired      = &AppError{Code: CodeTokenExpired}
	ErrTokenInvalid      = &AppError{Code: CodeTokenInvalid}
	ErrForbidden         = &AppError{Code: CodeForbidden}
	ErrNotFound          = &AppError{Code: CodeNotFound}
	ErrConflict          = &AppError{Code: CodeConflict}
	ErrRateLimited       = &AppError{Code: CodeRateLimited}
	ErrInternal          = &AppError{Code: CodeInternal}
)

// AppError carries a status code, a machine-readable code and a client-safe message.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same Code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e carrying cause.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func newErr(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: status}
}

// Validation is returned for missing or malformed input.
func Validation(msg string) *AppError {
	return newErr(CodeValidation, http.StatusBadRequest, msg)
}

// InvalidCredential is returned when a password does not verify. The message must not
// reveal whether the account exists.
func InvalidCredential() *AppError {
	return newErr(CodeInvalidCredential, http.StatusUnauthorized, "Invalid user credentials")
}

// Unauthorized is returned for a missing, invalid or revoked token.
func Unauthorized(msg string) *AppError {
	return newErr(CodeUnauthorized, http.StatusUnauthorized, msg)
}

// TokenExpired is returned by the token issuer when a token is past its expiry.
func TokenExpired(cause error) *AppError {
	return &AppError{Code: CodeTokenExpired, Message: "Token has expired", HTTPStatus: http.StatusUnauthorized, Cause: cause}
}

// TokenInvalid is returned for a bad signature, a malformed payload or the wrong token kind.
func TokenInvalid(cause error) *AppError {
	return &AppError{Code: CodeTokenInvalid, Message: "Token is invalid", HTTPStatus: http.StatusUnauthorized, Cause: cause}
}

// Forbidden is returned when the caller does not own the resource it tries to mutate.
func Forbidden(msg string) *AppError {
	return newErr(CodeForbidden, http.StatusForbidden, msg)
}

// NotFound creates a 404 for a named resource, e.g. NotFound("Video").
func NotFound(resource string) *AppError {
	return newErr(CodeNotFound, http.StatusNotFound, resource+" not found")
}

// Conflict is returned for duplicate unique fields.
func Conflict(msg string) *AppError {
	return newErr(CodeConflict, http.StatusConflict, msg)
}

// RateLimited is returned when a caller exceeds the request budget.
func RateLimited() *AppError {
	return newErr(CodeRateLimited, http.StatusTooManyRequests, "Too many requests")
}

// Internal wraps an unexpected failure. The cause is logged, never returned.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Something went wrong, please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As extracts the *AppError from err's chain, or nil.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// From returns err as an *AppError, wrapping anything unknown as Internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae := As(err); ae != nil {
		return ae
	}
	return Internal(err)
}
