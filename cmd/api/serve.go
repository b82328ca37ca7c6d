package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjiri1684/crypto_academy/catalog"
	config "github.com/anjiri1684/crypto_academy/configs"
	"github.com/anjiri1684/crypto_academy/database"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/handlers"
	"github.com/anjiri1684/crypto_academy/jobs"
	"github.com/anjiri1684/crypto_academy/logger"
	"github.com/anjiri1684/crypto_academy/metrics"
	"github.com/anjiri1684/crypto_academy/notifications"
	"github.com/anjiri1684/crypto_academy/routes"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/anjiri1684/crypto_academy/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	cat, err := catalog.LoadFile(cfg.PlansFile)
	if err != nil {
		return fmt.Errorf("load plan catalog: %w", err)
	}

	bus, err := newBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	notifier := notifications.NewEmailService(cfg, log)
	policy := services.Policy{MinWithdrawal: cfg.MinWithdrawal, ReferrerShare: cfg.ReferrerShare}
	if err := policy.Validate(); err != nil {
		return err
	}

	registry := services.NewRegistry(db, log)
	wallets := services.NewWalletService(db, bus, notifier, policy, log)
	calculator := services.NewCalculator(db, registry, wallets, notifier, policy, log)
	referrals := services.NewReferralService(db, cat, registry, calculator, bus, log)
	purchases := services.NewPurchaseService(db, cat, registry, calculator, referrals, log)
	accounts := services.NewAccountService(db, registry, referrals, wallets, cfg.JWTSecret, log)
	stipends := services.NewStipendService(db, cat, wallets, log)

	if err := accounts.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminFullName); err != nil {
		return err
	}

	feed, err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to wallet events: %w", err)
	}
	hub := websocket.NewHub(log)

	scheduler := jobs.NewScheduler(log)
	if _, err := jobs.Schedule(scheduler, cfg.StipendSchedule, jobs.NewStipendJob(stipends, log)); err != nil {
		return err
	}

	app := newApp(log)
	routes.Setup(app, routes.Handlers{
		Auth:          handlers.NewAuthHandler(accounts, registry),
		Plans:         handlers.NewPlanHandler(cat, calculator),
		Referrals:     handlers.NewReferralHandler(referrals, registry),
		Purchases:     handlers.NewPurchaseHandler(purchases),
		Wallet:        handlers.NewWalletHandler(wallets),
		Admin:         handlers.NewAdminHandler(services.NewAdminService(db), wallets, stipends),
		WalletFeed:    handlers.NewWalletFeed(accounts, hub, log),
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx, feed)
	})
	g.Go(func() error {
		scheduler.Start()
		log.Info().Str("schedule", cfg.StipendSchedule).Msg("stipend job scheduled")
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server is running")
		if err := app.Listen(":" + cfg.Port); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newBus(ctx context.Context, cfg *config.Config, log zerolog.Logger) (events.Bus, error) {
	if cfg.RedisURL == "" {
		return events.NewLocalBus(), nil
	}
	bus, err := events.NewRedisBus(cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}
	if err := bus.Ping(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Msg("wallet events relayed through redis")
	return bus, nil
}

func newApp(log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Crypto Academy",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Webhook-Secret, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(metrics.Middleware())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Crypto Academy API",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	return app
}
