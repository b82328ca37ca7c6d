package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/database"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/handlers"
	"github.com/anjiri1684/crypto_academy/notifications"
	"github.com/anjiri1684/crypto_academy/routes"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/anjiri1684/crypto_academy/websocket"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "test-webhook-secret"
)

type testApp struct {
	app      *fiber.App
	accounts *services.AccountService
	wallets  *services.WalletService
	db       *gorm.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	cat, err := catalog.Default()
	require.NoError(t, err)

	log := zerolog.Nop()
	policy := services.DefaultPolicy()
	registry := services.NewRegistry(db, log)
	wallets := services.NewWalletService(db, events.Nop{}, notifications.Nop{}, policy, log)
	calculator := services.NewCalculator(db, registry, wallets, notifications.Nop{}, policy, log)
	referrals := services.NewReferralService(db, cat, registry, calculator, events.Nop{}, log)
	purchases := services.NewPurchaseService(db, cat, registry, calculator, referrals, log)
	accounts := services.NewAccountService(db, registry, referrals, wallets, jwtSecret, log)
	stipends := services.NewStipendService(db, cat, wallets, log)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(log)})
	routes.Setup(app, routes.Handlers{
		Auth:          handlers.NewAuthHandler(accounts, registry),
		Plans:         handlers.NewPlanHandler(cat, calculator),
		Referrals:     handlers.NewReferralHandler(referrals, registry),
		Purchases:     handlers.NewPurchaseHandler(purchases),
		Wallet:        handlers.NewWalletHandler(wallets),
		Admin:         handlers.NewAdminHandler(services.NewAdminService(db), wallets, stipends),
		WalletFeed:    handlers.NewWalletFeed(accounts, websocket.NewHub(log), log),
		JWTSecret:     jwtSecret,
		WebhookSecret: webhookSecret,
	})
	return &testApp{app: app, accounts: accounts, wallets: wallets, db: db}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []interface{}
		require.NoError(t, json.Unmarshal(raw, &list))
		out["items"] = list
	}
	return resp, out
}

// register creates an account and returns its token and referral code.
func (a *testApp) register(t *testing.T, name, email, referredBy string) (string, string) {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"full_name":        name,
		"email":            email,
		"password":         "secret123",
		"referred_by_code": referredBy,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	code, _ := body["referral_code"].(string)

	resp, body = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body["token"].(string), code
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	require.NoError(t, a.accounts.SeedAdmin(t.Context(), "admin@example.com", "adminpass", "Admin"))
	token, err := a.accounts.Login(t.Context(), "admin@example.com", "adminpass")
	require.NoError(t, err)
	return token
}
