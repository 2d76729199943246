package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kompetisi/internal/access"
)

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the caller identity used by the
// services. ok is false when the role is not one we know.
func (c Claims) Principal() (*access.Principal, bool) {
	role := access.ParseRole(c.Role)
	if role == "" || c.Subject == "" {
		return nil, false
	}
	return &access.Principal{ID: c.Subject, Role: role}, true
}

// Issue signs an access token for subject with the given role.
func Issue(subject string, role access.Role, issuer, key string, ttl time.Duration) (Token, error) {
	if key == "" {
		return Token{}, errors.New("empty signing key")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Subject: subject,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
