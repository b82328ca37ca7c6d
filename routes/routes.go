package routes

import (
	"github.com/anjiri1684/crypto_academy/handlers"
	"github.com/anjiri1684/crypto_academy/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Handlers bundles everything the API mounts.
type Handlers struct {
	Auth       *handlers.AuthHandler
	Plans      *handlers.PlanHandler
	Referrals  *handlers.ReferralHandler
	Purchases  *handlers.PurchaseHandler
	Wallet     *handlers.WalletHandler
	Admin      *handlers.AdminHandler
	WalletFeed *handlers.WalletFeed

	JWTSecret     string
	WebhookSecret string
}

func Setup(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")
	protected := middleware.Protected(h.JWTSecret)

	AuthRoutes(api, h, protected)
	PlanRoutes(api, h)
	ReferralRoutes(api, h, protected)
	PurchaseRoutes(api, h, protected)
	WalletRoutes(api, h, protected)
	AdminRoutes(api, h, protected)
	FeedRoutes(api, h)
}

func AuthRoutes(api fiber.Router, h Handlers, protected fiber.Handler) {
	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Get("/me", protected, h.Auth.Me)
}

func PlanRoutes(api fiber.Router, h Handlers) {
	plans := api.Group("/plans")
	plans.Get("", h.Plans.List)
	plans.Get("/:name", h.Plans.Get)
	plans.Post("/:name/quote", h.Plans.Quote)
}

func ReferralRoutes(api fiber.Router, h Handlers, protected fiber.Handler) {
	referrals := api.Group("/referrals")
	referrals.Post("/validate", h.Referrals.Validate)

	referrals.Post("", protected, h.Referrals.Record)
	referrals.Get("", protected, h.Referrals.List)
	referrals.Get("/stats", protected, h.Referrals.Stats)
	referrals.Get("/me/code", protected, h.Referrals.MyCode)
	referrals.Post("/track", protected, middleware.AdminRequired(), h.Referrals.Track)
}

func PurchaseRoutes(api fiber.Router, h Handlers, protected fiber.Handler) {
	purchases := api.Group("/purchases", protected)
	purchases.Post("", h.Purchases.Create)
	purchases.Get("", h.Purchases.List)

	api.Post("/payments/webhook", middleware.WebhookSecret(h.WebhookSecret), h.Purchases.PaymentWebhook)
}

func WalletRoutes(api fiber.Router, h Handlers, protected fiber.Handler) {
	wallet := api.Group("/wallet", protected)
	wallet.Get("", h.Wallet.Balance)
	wallet.Post("/withdrawals", h.Wallet.RequestWithdrawal)
	wallet.Get("/withdrawals", h.Wallet.ListWithdrawals)
}

func AdminRoutes(api fiber.Router, h Handlers, protected fiber.Handler) {
	admin := api.Group("/admin", protected, middleware.AdminRequired())
	admin.Get("/stats", h.Admin.GetDashboardStats)
	admin.Get("/users", h.Admin.GetAllUsers)
	admin.Get("/purchases", h.Admin.GetPurchases)
	admin.Get("/withdrawals", h.Admin.ListWithdrawals)
	admin.Post("/withdrawals/:id/resolve", h.Admin.ResolveWithdrawal)
	admin.Post("/stipends/run", h.Admin.RunStipends)
}

func FeedRoutes(api fiber.Router, h Handlers) {
	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(h.WalletFeed.ServeWs))
}
