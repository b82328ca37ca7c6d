package services

import (
	"context"
	"strings"
	"testing"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/database"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/notifications"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	bus        *events.LocalBus
	registry   *Registry
	wallets    *WalletService
	calculator *Calculator
	referrals  *ReferralService
	purchases  *PurchaseService
	accounts   *AccountService
	stipends   *StipendService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T, opts ...RegistryOption) *testEnv {
	t.Helper()
	db := newTestDB(t)
	cat, err := catalog.Default()
	require.NoError(t, err)

	log := zerolog.Nop()
	bus := events.NewLocalBus()
	t.Cleanup(func() { bus.Close() })

	policy := DefaultPolicy()
	env := &testEnv{db: db, catalog: cat, bus: bus}
	env.registry = NewRegistry(db, log, opts...)
	env.wallets = NewWalletService(db, bus, notifications.Nop{}, policy, log)
	env.calculator = NewCalculator(db, env.registry, env.wallets, notifications.Nop{}, policy, log)
	env.referrals = NewReferralService(db, cat, env.registry, env.calculator, bus, log)
	env.purchases = NewPurchaseService(db, cat, env.registry, env.calculator, env.referrals, log)
	env.accounts = NewAccountService(db, env.registry, env.referrals, env.wallets, "test-secret", log)
	env.stipends = NewStipendService(db, cat, env.wallets, log)
	return env
}

// createUser inserts a user with an empty wallet, skipping password hashing.
func (e *testEnv) createUser(t *testing.T, name string) models.User {
	t.Helper()
	u := models.User{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Password: "x",
		Role:     models.RoleStudent,
	}
	require.NoError(t, e.db.Create(&u).Error)
	require.NoError(t, e.wallets.OpenWallet(e.db, u.ID))
	return u
}

func (e *testEnv) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	_, err := e.wallets.adjust(e.db, userID, decimal.RequireFromString(amount), models.TxnReferralCredit, "test-funding")
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := e.wallets.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func plan(t *testing.T, price string, bonusType catalog.BonusType, amount string, tiers ...catalog.Tier) catalog.Plan {
	t.Helper()
	p := catalog.Plan{
		Name:           "Test",
		Price:          dec(price),
		DurationMonths: 1,
		ReferralBonus: catalog.ReferralBonus{
			Type:   bonusType,
			Amount: dec(amount),
			Tiers:  tiers,
		},
	}
	_, err := catalog.New([]catalog.Plan{p})
	require.NoError(t, err)
	return p
}
