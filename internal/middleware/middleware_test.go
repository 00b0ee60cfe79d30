package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jitta-card/jitta_card/internal/logging"
	"github.com/jitta-card/jitta_card/internal/response"
	"github.com/redis/go-redis/v9"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(RequestIDHeader).(string))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, _ = app.Test(req)
	if got := resp.Header.Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected caller id to be echoed, got %q", got)
	}
}

func TestAudit_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logging.Discard())})
	app.Use(RequestID(), Audit(logger))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusBadRequest, "nope") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusInternalServerError, "boom") })

	for path, want := range map[string]string{
		"/ok":   `"level":"INFO"`,
		"/bad":  `"level":"WARN"`,
		"/boom": `"level":"ERROR"`,
	} {
		buf.Reset()
		if _, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil)); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		line := buf.String()
		if !strings.Contains(line, want) || !strings.Contains(line, `"request_id"`) {
			t.Fatalf("%s: unexpected audit line %s", path, line)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	login := func(user string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"userName":"`+user+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		return resp.StatusCode
	}

	if login("alice") != http.StatusOK || login("Alice") != http.StatusOK {
		t.Fatal("first two attempts should pass")
	}
	if got := login("alice"); got != http.StatusTooManyRequests {
		t.Fatalf("third attempt: expected 429, got %d", got)
	}
	if got := login("bob"); got != http.StatusOK {
		t.Fatalf("other users are unaffected, got %d", got)
	}
}

func TestLoginRateLimit_WithoutCache(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, _ := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected pass-through without cache, got %d", resp.StatusCode)
		}
	}
}
