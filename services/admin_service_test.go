package services

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	admin := NewAdminService(env.db)
	ctx := context.Background()

	buyer := env.createUser(t, "Jane Doe")
	env.createUser(t, "John Roe")
	now := time.Now().UTC()
	for _, p := range []models.Purchase{
		{UserID: buyer.ID, PlanName: "Premium", OriginalPrice: dec("100"), Discount: dec("15"), FinalPrice: dec("85"), Status: models.PurchasePaid, PaidAt: &now},
		{UserID: buyer.ID, PlanName: "Basic", OriginalPrice: dec("30"), Discount: dec("0"), FinalPrice: dec("42.50"), Status: models.PurchasePaid, PaidAt: &now},
		{UserID: buyer.ID, PlanName: "Standard", OriginalPrice: dec("50"), Discount: dec("0"), FinalPrice: dec("50"), Status: models.PurchasePending},
	} {
		require.NoError(t, env.db.Create(&p).Error)
	}

	st, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.TotalUsers)
	assert.EqualValues(t, 2, st.PaidPurchases)
	assert.Equal(t, "127.50", st.Revenue.StringFixed(2))
	assert.Zero(t, st.TotalReferrals)
}

func TestAdminStatsEmpty(t *testing.T) {
	env := newTestEnv(t)
	st, err := NewAdminService(env.db).Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Revenue.IsZero())
}

func TestAdminListPurchasesPaging(t *testing.T) {
	env := newTestEnv(t)
	admin := NewAdminService(env.db)
	ctx := context.Background()
	buyer := env.createUser(t, "Jane Doe")

	for i := 0; i < 5; i++ {
		p := models.Purchase{UserID: buyer.ID, PlanName: "Basic", OriginalPrice: dec("30"), Discount: dec("0"), FinalPrice: dec("30"), Status: models.PurchasePending}
		require.NoError(t, env.db.Create(&p).Error)
	}

	page, err := admin.ListPurchases(ctx, "", PageQuery{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, PageMeta{Total: 5, Page: 3, LastPage: 3}, page.Meta)

	page, err = admin.ListPurchases(ctx, models.PurchasePaid, PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, PageMeta{Total: 0, Page: 1, LastPage: 1}, page.Meta)

	_, err = admin.ListPurchases(ctx, "refunded", PageQuery{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
