package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for request health counters. Exported for the health handlers (reset, collect).
const (
	KeyReqTotal  = "wattswap:health:req_total"
	KeyReqErrors = "wattswap:health:req_errors"
	KeyResTime   = "wattswap:health:res_time_total"
	KeyResCount  = "wattswap:health:res_count"
	KeyStartTime = "wattswap:health:start_time"
	KeyLastReq   = "wattswap:health:last_request"
	KeyErrorLog  = "wattswap:health:error_log"
)

// HealthMarker records request stats in Redis (skip /, /health*, favicon and live streams).
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") || strings.Contains(path, "/stream/") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   start.UTC(),
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		_, _ = rdb.Set(ctx, KeyLastReq, b, 0).Result()
		_, _ = rdb.Incr(ctx, KeyReqTotal).Result()

		err := c.Next()

		ms := time.Since(start).Milliseconds()
		_, _ = rdb.Incr(ctx, KeyResCount).Result()
		_, _ = rdb.IncrByFloat(ctx, KeyResTime, float64(ms)).Result()
		status := c.Response().StatusCode()
		if err != nil {
			// The global error handler has not written the response yet.
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		if status >= fiber.StatusInternalServerError {
			_, _ = rdb.Incr(ctx, KeyReqErrors).Result()
			// Errors returned to the global handler are recorded there.
			if err == nil {
				RecordError(rdb, c, status, nil)
			}
		}
		return err
	}
}

// MarkStart stores the process start time (unix ms) once; /reset overwrites it.
func MarkStart(ctx context.Context, rdb *redis.Client) {
	_, _ = rdb.SetNX(ctx, KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Result()
}
