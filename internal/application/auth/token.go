package auth

import (
	"errors"
	"time"

	"wattswap-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the bearer-token claims issued by the identity provider.
type IdentityClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens against the shared secret.
type TokenVerifier struct {
	Secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{Secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(raw string) (*domain.Identity, error) {
	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	id := &domain.Identity{UID: claims.Subject}
	if claims.Name != "" {
		name := claims.Name
		id.DisplayName = &name
	}
	return id, nil
}

// Issue signs a token for id. Used by tests and local tooling; production tokens come from the provider.
func (v *TokenVerifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Name: id.NameOr(""),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
