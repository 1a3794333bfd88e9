package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var errTokenType = errors.New("invalid token type")

type Claims struct {
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID is the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs access and refresh tokens with separate secrets, so leaking one
// key does not let an attacker mint the other kind of token.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}

	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) IssueAccessToken(userID, role string) (string, error) {
	now := i.now().UTC()

	claims := Claims{
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

// IssueRefreshToken mints a refresh token. The jti makes two tokens issued in
// the same second distinct, which rotation depends on.
func (i *Issuer) IssueRefreshToken(userID string) (raw string, expiresAt time.Time, err error) {
	now := i.now().UTC()
	expiresAt = now.Add(i.refreshTTL)

	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)

	return
}

func (i *Issuer) VerifyAccessToken(raw string) (*Claims, error) {
	return i.parse(raw, i.accessSecret, tokenTypeAccess)
}

func (i *Issuer) VerifyRefreshToken(raw string) (*Claims, error) {
	return i.parse(raw, i.refreshSecret, tokenTypeRefresh)
}

// HashRefreshToken is the only form of a refresh token that is persisted.
func (i *Issuer) HashRefreshToken(raw string) string {
	h := hmac.New(sha256.New, i.refreshSecret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

func (i *Issuer) parse(raw string, secret []byte, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.TokenType != wantType {
		return nil, errTokenType
	}

	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}

	return claims, nil
}
