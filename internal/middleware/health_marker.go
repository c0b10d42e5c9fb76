package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for the shared request counters read by the health endpoint.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyReqDenied = "health:global:req_denied"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
)

// HealthMarker records request stats in Redis (skip /, /health*, favicon).
// 5xx answers count as errors, 401/403/429 as denials.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	_ = rdb.SetNX(context.Background(), KeyStartTime, time.Now().UTC().Format(time.RFC3339), 0).Err()

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		lastReq, _ := json.Marshal(map[string]interface{}{
			"time":   start.UTC(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
		status := c.Response().StatusCode()

		pipe := rdb.Pipeline()
		ctx := context.Background()
		pipe.Set(ctx, KeyLastReq, lastReq, 0)
		pipe.Incr(ctx, KeyReqTotal)
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		switch {
		case status >= 500:
			pipe.Incr(ctx, KeyReqErrors)
		case status == fiber.StatusUnauthorized || status == fiber.StatusForbidden || status == fiber.StatusTooManyRequests:
			pipe.Incr(ctx, KeyReqDenied)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}
