package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPremiumPurchaseWithReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.accounts.Register(ctx, RegisterInput{FullName: "Referrer", Email: "referrer@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, reg.ReferralCode)

	buyer, err := env.accounts.Register(ctx, RegisterInput{FullName: "Buyer", Email: "buyer@example.com", Password: "secret123", ReferredByCode: reg.ReferralCode})
	require.NoError(t, err)

	// no explicit code: the registration code applies
	p, err := env.purchases.Create(ctx, buyer.User.ID, "Premium", "")
	require.NoError(t, err)
	assert.Equal(t, "85.00", p.FinalPrice.StringFixed(2))
	assert.Equal(t, "15.00", p.Discount.StringFixed(2))
	require.NotNil(t, p.ReferralCode)
	assert.Equal(t, reg.ReferralCode, *p.ReferralCode)

	paid, err := env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_premium", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePaid, paid.Status)

	ledger, err := env.referrals.Ledger(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.50", ledger.AccruedEarnings.StringFixed(2))
	assert.EqualValues(t, 1, ledger.ActiveReferrals)
	assert.Equal(t, "7.50", env.balance(t, reg.User.ID).StringFixed(2))

	// replayed webhook
	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_premium", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, "7.50", env.balance(t, reg.User.ID).StringFixed(2))

	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_other", Succeeded: true})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPurchaseWithoutCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.createUser(t, "Buyer")

	p, err := env.purchases.Create(ctx, buyer.ID, "standard", "")
	require.NoError(t, err)
	assert.Equal(t, "Standard", p.PlanName)
	assert.Nil(t, p.ReferralCode)
	assert.True(t, p.FinalPrice.Equal(p.OriginalPrice))

	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_plain", Succeeded: true})
	require.NoError(t, err)

	var credits int64
	require.NoError(t, env.db.Model(&models.ReferralCredit{}).Count(&credits).Error)
	assert.Zero(t, credits)
}

func TestPurchaseErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.createUser(t, "Buyer")

	_, err := env.purchases.Create(ctx, buyer.ID, "Diamond", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.purchases.Create(ctx, uuid.New(), "Basic", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: uuid.New(), PaymentID: "x", Succeeded: true})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := env.purchases.Create(ctx, buyer.ID, "Basic", "")
	require.NoError(t, err)
	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFailedPaymentIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.createUser(t, "Buyer")

	p, err := env.purchases.Create(ctx, buyer.ID, "Basic", "")
	require.NoError(t, err)

	failed, err := env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_1", Succeeded: false})
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, failed.Status)

	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_1", Succeeded: true})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPaymentIDCannotPayTwoPurchases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.createUser(t, "Buyer")

	a, err := env.purchases.Create(ctx, buyer.ID, "Basic", "")
	require.NoError(t, err)
	b, err := env.purchases.Create(ctx, buyer.ID, "Basic", "")
	require.NoError(t, err)

	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: a.ID, PaymentID: "pay_shared", Succeeded: true})
	require.NoError(t, err)
	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: b.ID, PaymentID: "pay_shared", Succeeded: true})
	assert.ErrorIs(t, err, ErrConflict)
}
