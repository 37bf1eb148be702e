package middleware

import (
	"strings"

	authsvc "wattswap-backend/internal/application/auth"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const identityLocal = "identity"

// IdentityVerifier turns a bearer token into an identity.
type IdentityVerifier interface {
	Verify(raw string) (*domain.Identity, error)
}

// Identify resolves the caller's identity: a valid bearer token wins, then the session user.
// It never rejects; RequireAuth decides whether an identity is needed.
// A nil verifier disables bearer tokens.
func Identify(verifier IdentityVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw, ok := bearerToken(c); ok && verifier != nil {
			id, err := verifier.Verify(raw)
			if err == nil {
				c.Locals(identityLocal, id)
				return c.Next()
			}
			log.Info().Str("trace_id", GetTraceID(c)).Err(err).Msg("bearer token rejected")
		}
		if id, err := authsvc.VerifyUser(GetSessionUser(c)); err == nil {
			c.Locals(identityLocal, id)
		}
		return c.Next()
	}
}

// RequireAuth rejects requests without an identity with 401 in the standard error format.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentIdentity(c) == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// CurrentIdentity returns the caller, or nil when unauthenticated.
func CurrentIdentity(c *fiber.Ctx) *domain.Identity {
	id, _ := c.Locals(identityLocal).(*domain.Identity)
	return id
}

// SetIdentity is used by tests and by handlers that authenticate inline (login).
func SetIdentity(c *fiber.Ctx, id *domain.Identity) {
	c.Locals(identityLocal, id)
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(h[7:])
	return raw, raw != ""
}
