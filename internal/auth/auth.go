// Package auth turns request credentials into a caller identity.
//
// Production callers present an HS256 bearer token carrying user_id and an
// optional space_id. Development setups may instead trust the X-User-Id and
// X-Space-Id headers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderUser  = "X-User-Id"
	HeaderSpace = "X-Space-Id"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated caller. SpaceID optionally names the space
// writes go to.
type Identity struct {
	UserID  string
	SpaceID string
}

// Claims are the JWT claims issued to agents.
type Claims struct {
	UserID  string `json:"user_id"`
	SpaceID string `json:"space_id,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret         []byte
	Issuer         string
	TTL            time.Duration
	HeaderIdentity bool
}

// Authenticator issues and validates tokens.
type Authenticator struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg, now: time.Now}
}

// Issue signs a token for userID. spaceID may be empty.
func (a *Authenticator) Issue(userID, spaceID string) (string, error) {
	if len(a.cfg.Secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := a.now()
	claims := Claims{
		UserID:  userID,
		SpaceID: strings.TrimSpace(spaceID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if a.cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.cfg.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a signed token.
func (a *Authenticator) Validate(tokenString string) (Identity, error) {
	if len(a.cfg.Secret) == 0 {
		return Identity{}, fmt.Errorf("%w: bearer tokens are not enabled", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(a.now)}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Identity{}, fmt.Errorf("%w: token has no user_id", ErrUnauthenticated)
	}
	return Identity{UserID: claims.UserID, SpaceID: claims.SpaceID}, nil
}

// Authenticate resolves the identity from an Authorization header value and,
// when header identity is enabled, the development headers. A bearer token
// always wins over headers.
func (a *Authenticator) Authenticate(authorization, userHeader, spaceHeader string) (Identity, error) {
	if token, ok := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer "); ok {
		return a.Validate(strings.TrimSpace(token))
	}
	if a.cfg.HeaderIdentity {
		if user := strings.TrimSpace(userHeader); user != "" {
			return Identity{UserID: user, SpaceID: strings.TrimSpace(spaceHeader)}, nil
		}
	}
	return Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
}

// FromRequest authenticates an HTTP request.
func (a *Authenticator) FromRequest(r *http.Request) (Identity, error) {
	return a.Authenticate(r.Header.Get("Authorization"), r.Header.Get(HeaderUser), r.Header.Get(HeaderSpace))
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
