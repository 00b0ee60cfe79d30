package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jitta-card/jitta_card/internal/config"
	"github.com/jitta-card/jitta_card/internal/customer"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/jitta-card/jitta_card/internal/metrics"
	promcollector "github.com/jitta-card/jitta_card/internal/metrics/prometheus"
	"github.com/jitta-card/jitta_card/internal/middleware"
	"github.com/jitta-card/jitta_card/internal/notification"
	"github.com/jitta-card/jitta_card/internal/resilience"
	"github.com/jitta-card/jitta_card/internal/transaction"
	"github.com/jitta-card/jitta_card/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache,
// Notifier and Registry are optional.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.DB == nil && !d.Cfg.IsDev() {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	collector := promcollector.NewCollector(d.Cfg.AppName)
	if err := collector.Register(d.Registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.DBAcquireTimeout)
	} else {
		d.Logger.Warn("no database configured, using in-memory ledger store")
		store = ledger.NewInMemory()
	}
	guarded := resilience.NewStore(store, resilience.Config{
		Name:                "ledger-store",
		ConsecutiveFailures: d.Cfg.BreakerFailures,
		OpenTimeout:         d.Cfg.BreakerTimeout,
	}, collector, d.Logger)
	collector.RecordBreakerState(guarded.Name(), metrics.BreakerClosed)

	engine := ledger.NewEngine(guarded,
		ledger.WithLogger(d.Logger),
		ledger.WithMetrics(collector),
		ledger.WithNotifier(d.Notifier),
	)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d, guarded)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterCustomerRoutes(api, customer.NewHandler(customer.NewService(guarded)),
		middleware.LoginRateLimit(d.Cache, d.Cfg.LoginPerMinute))
	RegisterWalletRoutes(api, wallet.NewHandler(engine))
	RegisterTransactionRoutes(api, transaction.NewHandler(engine))
	return nil
}
