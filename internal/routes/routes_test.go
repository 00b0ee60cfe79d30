package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jitta-card/jitta_card/internal/config"
	"github.com/jitta-card/jitta_card/internal/logging"
	"github.com/jitta-card/jitta_card/internal/middleware"
	"github.com/jitta-card/jitta_card/internal/response"
)

type envelope struct {
	Status response.Status `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func devConfig() config.Config {
	return config.Config{
		AppName:         "jitta_card",
		AppEnv:          "test",
		BreakerFailures: 5,
		LoginPerMinute:  5,
	}
}

func newApp(t *testing.T, cache *redis.Client) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logging.Discard())})
	if err := Setup(app, Deps{Cfg: devConfig(), Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func send(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return resp, env
}

func register(t *testing.T, app *fiber.App, name string) string {
	t.Helper()
	resp, env := send(t, app, http.MethodPost, "/api/v1/customer/register", `{"userName":"`+name+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: %d %+v", name, resp.StatusCode, env.Status)
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.ID == "" {
		t.Fatalf("register %s: bad payload %s", name, env.Data)
	}
	return data.ID
}

func TestSetup_EndToEnd(t *testing.T) {
	app := newApp(t, nil)
	alice := register(t, app, "alice")
	bob := register(t, app, "bob")

	steps := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPatch, "/api/v1/customer/toggle-round-up/" + alice, `{"roundUp":true}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/deposit", `{"userId":"` + alice + `","amount":"350"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/pay", `{"userId":"` + alice + `","amount":100}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/transfer", `{"senderUserId":"` + alice + `","recipientUserId":"` + bob + `","amount":"25.50"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/loan", `{"userId":"` + alice + `","requestedAmount":"25"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/loan", `{"userId":"` + alice + `","requestedAmount":"1"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/wallet/settle", `{"userId":"` + alice + `","amount":"10"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/withdraw", `{"userId":"` + bob + `","amount":"100"}`, http.StatusBadRequest},
	}
	for _, s := range steps {
		if resp, env := send(t, app, s.method, s.path, s.body); resp.StatusCode != s.status {
			t.Fatalf("%s %s: expected %d, got %d %+v", s.method, s.path, s.status, resp.StatusCode, env.Status)
		}
	}

	resp, env := send(t, app, http.MethodGet, "/api/v1/wallet/balance/"+alice+"?walletType=ALL", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance: %d %+v", resp.StatusCode, env.Status)
	}
	var balances []struct {
		WalletName string `json:"walletName"`
		Balance    string `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &balances); err != nil {
		t.Fatalf("decode balances %s: %v", env.Data, err)
	}
	// 350 - 100 - 50 round-up - 25.50 + 25 loan - 10 repaid
	want := map[string]string{"MAIN": "189.50", "EARN": "50.00", "LOAN": "-15.00"}
	for _, b := range balances {
		if want[b.WalletName] != b.Balance {
			t.Fatalf("%s: expected %s, got %s", b.WalletName, want[b.WalletName], b.Balance)
		}
	}

	resp, env = send(t, app, http.MethodGet, "/api/v1/transaction/"+alice+"?walletType=MAIN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %+v", resp.StatusCode, env.Status)
	}
	var entries []map[string]any
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		t.Fatalf("decode history %s: %v", env.Data, err)
	}
	if len(entries) != 6 {
		t.Fatalf("expected 6 MAIN entries, got %d", len(entries))
	}
}

func TestSetup_MetricsExposed(t *testing.T) {
	app := newApp(t, nil)
	alice := register(t, app, "carol")
	send(t, app, http.MethodPost, "/api/v1/wallet/deposit", `{"userId":"`+alice+`","amount":"5"}`)
	send(t, app, http.MethodPost, "/api/v1/wallet/withdraw", `{"userId":"`+alice+`","amount":"50"}`)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`jitta_card_ledger_operations_total{operation="deposit",outcome="ok"} 1`,
		`jitta_card_ledger_operations_total{operation="withdraw",outcome="insufficient_funds"} 1`,
		`jitta_card_store_breaker_state{name="ledger-store"} 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestSetup_Health(t *testing.T) {
	app := newApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var body struct {
		Status map[string]string `json:"status"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status["ledger-store"] != "closed" || body.Status["postgres"] != "disabled" {
		t.Fatalf("unexpected health %d %s", resp.StatusCode, raw)
	}
}

func TestSetup_IdempotentDeposit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newApp(t, cache)
	dave := register(t, app, "dave")
	body := `{"userId":"` + dave + `","amount":"40"}`

	send(t, app, http.MethodPost, "/api/v1/wallet/deposit", body, middleware.IdempotencyKeyHeader, "dep-1")
	resp, _ := send(t, app, http.MethodPost, "/api/v1/wallet/deposit", body, middleware.IdempotencyKeyHeader, "dep-1")
	if resp.Header.Get(middleware.IdempotencyReplayedHeader) != "true" {
		t.Fatal("second deposit should be a replay")
	}

	_, env := send(t, app, http.MethodGet, "/api/v1/wallet/balance/"+dave+"?walletType=MAIN", "")
	var balances []struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &balances); err != nil || len(balances) != 1 || balances[0].Balance != "40.00" {
		t.Fatalf("deposit applied more than once: %s", env.Data)
	}
}

func TestSetup_RequiresDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	if err == nil {
		t.Fatal("expected error without a database in production")
	}
}
