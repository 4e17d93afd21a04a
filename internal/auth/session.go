package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/metrics"
	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
)

// IdentityStore is the credential store the session manager needs.
type IdentityStore interface {
	FindByLogin(ctx context.Context, username, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearRefreshToken(ctx context.Context, id primitive.ObjectID) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, digest string) error
}

// EventRecorder receives session lifecycle events. Recording is best effort.
type EventRecorder interface {
	RecordSessionEvent(ctx context.Context, event *models.SessionEvent) error
}

// Session is the outcome of a successful login or refresh.
type Session struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

// LoginInput holds the credentials of a login attempt. One of Username or Email is set.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// Manager orchestrates login, refresh, logout and password change on top of the
// credential store, the hasher and the token issuer. Each identity has at most one
// valid refresh token: the one stored on its record.
type Manager struct {
	users   IdentityStore
	hasher  PasswordHasher
	tokens  *TokenIssuer
	events  EventRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithEventRecorder enables the session audit trail.
func WithEventRecorder(r EventRecorder) Option {
	return func(m *Manager) { m.events = r }
}

// WithMetrics enables auth event counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager wires a session manager.
func NewManager(users IdentityStore, hasher PasswordHasher, tokens *TokenIssuer, opts ...Option) *Manager {
	if users == nil || hasher == nil || tokens == nil {
		panic("auth: session manager requires a store, a hasher and a token issuer")
	}
	m := &Manager{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tokens returns the issuer used by this manager, for the request authenticator.
func (m *Manager) Tokens() *TokenIssuer { return m.tokens }

// Login verifies credentials and issues a fresh token pair. Persisting the new refresh
// token overwrites any previous one, which revokes every other session of the identity.
func (m *Manager) Login(ctx context.Context, in LoginInput) (*Session, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	login := username
	if login == "" {
		login = email
	}
	if login == "" {
		return nil, apperr.Validation("username or email is required")
	}
	if in.Password == "" {
		return nil, apperr.Validation("password is required")
	}

	user, err := m.users.FindByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			m.record(ctx, models.SessionLoginFailed, "", login, "unknown identity")
			return nil, apperr.NotFound("User")
		}
		return nil, apperr.From(err)
	}

	ok, err := m.hasher.Verify(in.Password, user.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.record(ctx, models.SessionLoginFailed, user.ID.Hex(), login, "password mismatch")
		return nil, apperr.InvalidCredential()
	}

	session, err := m.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	m.record(ctx, models.SessionLogin, user.ID.Hex(), login, "")
	return session, nil
}

// Refresh rotates a token pair. The presented token must verify and must byte-equal
// the refresh token stored on the identity; a logged-out or already rotated token is
// rejected even when it has not expired yet.
func (m *Manager) Refresh(ctx context.Context, presented string) (*Session, error) {
	if presented == "" {
		return nil, apperr.Unauthorized("Unauthorized request")
	}

	claims, err := m.tokens.Verify(presented, KindRefresh)
	if err != nil {
		m.record(ctx, models.SessionRefreshRejected, "", "", err.Error())
		return nil, err
	}

	id, err := primitive.ObjectIDFromHex(claims.IdentityID())
	if err != nil {
		return nil, apperr.TokenInvalid(err)
	}

	user, err := m.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			m.record(ctx, models.SessionRefreshRejected, id.Hex(), "", "identity no longer exists")
			return nil, apperr.Unauthorized("Invalid refresh token")
		}
		return nil, apperr.From(err)
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(presented)) != 1 {
		m.record(ctx, models.SessionRefreshRejected, id.Hex(), "", "refresh token revoked or rotated")
		return nil, apperr.Unauthorized("Refresh token is expired or used")
	}

	session, err := m.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	m.record(ctx, models.SessionRefresh, id.Hex(), "", "")
	return session, nil
}

// Logout clears the stored refresh token. It is idempotent.
func (m *Manager) Logout(ctx context.Context, identityID primitive.ObjectID) error {
	if err := m.users.ClearRefreshToken(ctx, identityID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return apperr.From(err)
	}
	m.record(ctx, models.SessionLogout, identityID.Hex(), "", "")
	return nil
}

// ChangePassword re-hashes and stores a new password after verifying the old one.
// Outstanding tokens stay valid.
func (m *Manager) ChangePassword(ctx context.Context, identityID primitive.ObjectID, oldPlaintext, newPlaintext string) error {
	if oldPlaintext == "" || newPlaintext == "" {
		return apperr.Validation("old and new passwords are required")
	}

	user, err := m.users.GetUserByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("User")
		}
		return apperr.From(err)
	}

	ok, err := m.hasher.Verify(oldPlaintext, user.Password)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidCredential()
	}

	digest, err := m.hasher.Hash(newPlaintext)
	if err != nil {
		return err
	}
	if err := m.users.UpdatePassword(ctx, identityID, digest); err != nil {
		return apperr.From(err)
	}
	m.record(ctx, models.SessionPasswordChange, identityID.Hex(), "", "")
	return nil
}

func (m *Manager) issue(ctx context.Context, user *models.User) (*Session, error) {
	id := user.ID.Hex()
	access, err := m.tokens.IssueAccessToken(id, AccessClaims{
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := m.tokens.IssueRefreshToken(id)
	if err != nil {
		return nil, err
	}
	if err := m.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, apperr.From(err)
	}

	public := *user
	public.Password = ""
	public.RefreshToken = ""
	return &Session{AccessToken: access, RefreshToken: refresh, User: &public}, nil
}

func (m *Manager) record(ctx context.Context, typ models.SessionEventType, identityID, login, reason string) {
	m.metrics.AuthEvent(string(typ))
	if m.events == nil {
		return
	}
	client := ClientFromContext(ctx)
	event := &models.SessionEvent{
		Type:       typ,
		IdentityID: identityID,
		Login:      login,
		Reason:     reason,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.events.RecordSessionEvent(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "session event not recorded",
			slog.String("type", string(typ)),
			slog.String("identity_id", identityID),
			slog.Any("error", err),
		)
	}
}
