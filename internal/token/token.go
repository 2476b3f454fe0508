// Package token signs and verifies the session bearer tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token: expired")
	ErrTokenInvalid = errors.New("token: invalid")
)

const defaultIssuer = "hall-booking"

// Claims identifies the server-side session a token belongs to.
type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and parses HS256 session tokens.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec returns a codec signing with secret. now defaults to time.Now.
func NewCodec(secret string, now func() time.Time) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token: empty signing secret")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), issuer: defaultIssuer, now: now}, nil
}

// Issue signs a token for the session valid until expiresAt.
func (c *Codec) Issue(sessionID, userID, role string, expiresAt time.Time) (string, error) {
	issuedAt := c.now()
	claims := Claims{
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse verifies signature, issuer and expiry.
func (c *Codec) Parse(raw string) (*Claims, error) {
	return c.parse(raw, jwt.WithTimeFunc(c.now), jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
}

// ParseIgnoringExpiry verifies the signature only. Sign-out uses it so an
// expired token can still revoke its session.
func (c *Codec) ParseIgnoringExpiry(raw string) (*Claims, error) {
	return c.parse(raw, jwt.WithoutClaimsValidation())
}

func (c *Codec) parse(raw string, opts ...jwt.ParserOption) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
