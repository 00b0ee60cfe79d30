package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jitta-card/jitta_card/internal/metrics"
)

type breaker interface {
	Name() string
	State() metrics.BreakerState
}

// RegisterHealthRoutes adds a readiness endpoint covering Postgres, Redis
// and the ledger store circuit breaker.
func RegisterHealthRoutes(app *fiber.App, d Deps, cb breaker) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus, redisStatus := "disabled", "disabled"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			dbStatus = "ok"
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			redisStatus = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		breakerState := cb.State()

		status := http.StatusOK
		if !healthy(dbStatus) || !healthy(redisStatus) || breakerState == metrics.BreakerOpen {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status": fiber.Map{
				"postgres": dbStatus,
				"redis":    redisStatus,
				cb.Name():  breakerState.String(),
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func healthy(s string) bool {
	return s == "ok" || s == "disabled"
}
