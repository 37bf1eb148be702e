package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const errorLogSize = 50

// ErrorHandler returns the global error handler. Unhandled errors become the standard error
// envelope; 5xx are logged and, when rdb is set, pushed onto the health error log.
func ErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("unhandled error")
			RecordError(rdb, c, code, err)
		}
		return response.Error(c, message, code, nil)
	}
}

// RecordError appends an entry to the capped error log shown by /health/errors.
func RecordError(rdb *redis.Client, c *fiber.Ctx, code int, err error) {
	if rdb == nil {
		return
	}
	entry := map[string]interface{}{
		"time":       time.Now().UTC(),
		"method":     c.Method(),
		"path":       c.OriginalURL(),
		"statusCode": code,
		"trace_id":   GetTraceID(c),
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	b, _ := json.Marshal(entry)
	ctx := context.Background()
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, b)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	_, _ = pipe.Exec(ctx)
}
