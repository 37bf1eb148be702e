package marketplace

import (
	"errors"

	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/middleware"
	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	msgRetryLater    = "The marketplace is temporarily unavailable. Please retry later."
	msgWriteFailed   = "Your change could not be saved. Please try again."
	msgInternalError = "Internal Server Error"
)

// statusFor maps a workflow error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindAlreadySold:
		return fiber.StatusConflict
	case domain.KindSelfPurchase:
		return fiber.StatusForbidden
	case domain.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case domain.KindQuery:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// messageFor is the user-facing text. Store failures never leak driver messages.
func messageFor(err error) string {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindQuery:
		return msgRetryLater
	case domain.KindPersistence:
		return msgWriteFailed
	case "":
		return msgInternalError
	}
	return rootMessage(err)
}

// rootMessage returns the Message of the outermost typed error in the chain.
func rootMessage(err error) string {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return msgInternalError
}

func writeError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Str("path", c.Path()).
			Str("kind", string(kind)).Msg("marketplace request failed")
	}
	return response.ErrorKind(c, messageFor(err), status, string(kind))
}
