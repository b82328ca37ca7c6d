package services

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidPurchase(t *testing.T, env *testEnv, planName string, paidAt time.Time) models.User {
	t.Helper()
	ctx := context.Background()
	buyer := env.createUser(t, "Stipend Holder")
	p, err := env.purchases.Create(ctx, buyer.ID, planName, "")
	require.NoError(t, err)
	_, err = env.purchases.ConfirmPayment(ctx, PaymentConfirmation{PurchaseID: p.ID, PaymentID: "pay_" + p.ID.String(), Succeeded: true})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Purchase{}).Where("id = ?", p.ID).Update("paid_at", paidAt).Error)
	return buyer
}

func TestDisburseDuePaysElapsedMonthsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)

	// Premium pays 6 a month for 3 months; two have elapsed.
	buyer := paidPurchase(t, env, "Premium", now.AddDate(0, -2, -1))

	n, err := env.stipends.DisburseDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "12.00", env.balance(t, buyer.ID).StringFixed(2))

	n, err = env.stipends.DisburseDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	// long after the last month the total stops at three payments
	n, err = env.stipends.DisburseDue(ctx, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "18.00", env.balance(t, buyer.ID).StringFixed(2))
}

func TestDisburseDueSkipsPlansWithoutStipend(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)
	buyer := paidPurchase(t, env, "Basic", now.AddDate(-1, 0, 0))

	n, err := env.stipends.DisburseDue(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, env.balance(t, buyer.ID).IsZero())
}
