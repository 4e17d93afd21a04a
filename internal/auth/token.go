package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/anonto42/vidtube/backend/internal/apperr"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// AccessClaims is the small claim set embedded in access tokens.
type AccessClaims struct {
	Email    string
	Username string
	FullName string
}

// Claims is the decoded payload of either token kind. Refresh tokens carry only the
// subject, kind and registered claims.
type Claims struct {
	Kind     TokenKind `json:"typ"`
	Email    string    `json:"email,omitempty"`
	Username string    `json:"username,omitempty"`
	FullName string    `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// IdentityID returns the identity the token was issued to.
func (c *Claims) IdentityID() string { return c.Subject }

// TokenConfig holds the signing keys and lifetimes. Each kind has its own secret so a
// refresh token can never pass as an access token.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenIssuer signs and verifies HS256 tokens. Verification never touches the store.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

// IssueAccessToken signs a short-lived token for identityID.
func (t *TokenIssuer) IssueAccessToken(identityID string, claims AccessClaims) (string, error) {
	return t.sign(KindAccess, identityID, claims)
}

// IssueRefreshToken signs a long-lived token that embeds only identityID.
func (t *TokenIssuer) IssueRefreshToken(identityID string) (string, error) {
	return t.sign(KindRefresh, identityID, AccessClaims{})
}

func (t *TokenIssuer) sign(kind TokenKind, identityID string, extra AccessClaims) (string, error) {
	if identityID == "" {
		return "", apperr.Internal(errors.New("auth: cannot issue a token without an identity id"))
	}
	now := t.now()
	claims := Claims{
		Kind:     kind,
		Email:    extra.Email,
		Username: extra.Username,
		FullName: extra.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl(kind))),
			// Unique per token so two pairs minted in the same second still differ.
			ID: uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret(kind))
	if err != nil {
		return "", apperr.Internal(oops.In("auth").Code("SIGNING_ERROR").With("kind", kind).Wrap(err))
	}
	return signed, nil
}

// Verify checks signature, expiry and kind, and returns the decoded claims.
// It fails with apperr.ErrTokenExpired or apperr.ErrTokenInvalid.
func (t *TokenIssuer) Verify(raw string, kind TokenKind) (*Claims, error) {
	if raw == "" {
		return nil, apperr.TokenInvalid(errors.New("empty token"))
	}
	secret := t.secret(kind)
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		// A tampered token is invalid even when it has also expired.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, apperr.TokenInvalid(err)
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.TokenExpired(err)
		}
		return nil, apperr.TokenInvalid(err)
	}
	if !token.Valid {
		return nil, apperr.TokenInvalid(errors.New("token not valid"))
	}
	if claims.Kind != kind {
		return nil, apperr.TokenInvalid(fmt.Errorf("expected %s token, got %q", kind, claims.Kind))
	}
	if claims.Subject == "" {
		return nil, apperr.TokenInvalid(errors.New("token has no subject"))
	}
	return claims, nil
}

func (t *TokenIssuer) secret(kind TokenKind) []byte {
	if kind == KindRefresh {
		return t.refreshSecret
	}
	return t.accessSecret
}

func (t *TokenIssuer) ttl(kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return t.refreshTTL
	}
	return t.accessTTL
}
