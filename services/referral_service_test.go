package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndListReferrals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)

	ref, err := env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Ann", Email: "Ann@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.ReferralPending, ref.Status)
	assert.Equal(t, "ann@example.com", ref.ReferredUserEmail)

	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Ann", Email: "ann@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	list, err := env.referrals.ListByCode(ctx, rc.Code)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.referrals.ListByCode(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordReferralRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)

	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: "NOPE0000", UserName: "Ann", Email: "ann@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: " ", Email: "ann@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Ann", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTrackActivatesReferralAndCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)
	_, err = env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	in := TrackInput{Code: rc.Code, PlanName: "Premium", PaymentID: "pay_42", ReferredEmail: "ann@example.com"}
	credit, err := env.referrals.Track(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "7.50", credit.Amount.StringFixed(2))

	_, err = env.referrals.Track(ctx, in)
	assert.ErrorIs(t, err, ErrAlreadyCredited)

	ledger, err := env.referrals.Ledger(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, rc.Code, ledger.Code)
	assert.EqualValues(t, 1, ledger.TotalReferrals)
	assert.EqualValues(t, 1, ledger.ActiveReferrals)
	assert.Equal(t, "7.50", ledger.AccruedEarnings.StringFixed(2))
	assert.Equal(t, "7.50", env.balance(t, owner.ID).StringFixed(2))
}

func TestTrackErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)

	_, err = env.referrals.Track(ctx, TrackInput{Code: rc.Code, PlanName: "Premium"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.referrals.Track(ctx, TrackInput{Code: rc.Code, PlanName: "Diamond", PaymentID: "p"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.referrals.Track(ctx, TrackInput{Code: "NOPE0000", PlanName: "Premium", PaymentID: "p"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsUsesActiveReferrals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)

	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		_, err := env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: email, Email: email})
		require.NoError(t, err)
		if i < 3 {
			_, err = env.referrals.Track(ctx, TrackInput{Code: rc.Code, PlanName: "Basic", PaymentID: email, ReferredEmail: email})
			require.NoError(t, err)
		}
	}

	stats, err := env.referrals.Stats(ctx, owner.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, "Premium", stats.Plan)
	assert.EqualValues(t, 4, stats.TotalReferrals)
	assert.EqualValues(t, 3, stats.ActiveReferrals)
	require.NotNil(t, stats.Tier.Current)
	assert.Equal(t, 1, stats.Tier.Current.Threshold)
	require.NotNil(t, stats.Tier.Next)
	assert.Equal(t, 2, stats.Tier.Next.Remaining)
	require.Len(t, stats.Milestones.Achieved, 1)
	assert.Len(t, stats.Referrals, 4)

	// Basic is 5% of 30 = 1.50 discount, half of it per referral.
	assert.Equal(t, "2.25", stats.AccruedEarnings.StringFixed(2))

	_, err = env.referrals.Stats(ctx, owner.ID, "Diamond")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsDefaultsToFirstPlan(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "No Code")

	stats, err := env.referrals.Stats(context.Background(), u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, env.catalog.First().Name, stats.Plan)
	assert.Empty(t, stats.Code)
	assert.True(t, stats.AccruedEarnings.IsZero())
	assert.Empty(t, stats.Referrals)
}

func TestPendingReferralFor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "Code Owner")
	buyer := env.createUser(t, "Buyer")
	rc, err := env.registry.IssueCode(ctx, owner.ID)
	require.NoError(t, err)

	id, err := env.referrals.pendingReferralFor(ctx, buyer.ID, rc.Code)
	require.NoError(t, err)
	assert.Nil(t, id)

	ref, err := env.referrals.RecordReferral(ctx, RecordReferralInput{Code: rc.Code, UserName: "Buyer", Email: buyer.Email, ReferredUserID: &buyer.ID})
	require.NoError(t, err)

	id, err = env.referrals.pendingReferralFor(ctx, buyer.ID, rc.Code)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, ref.ID, *id)

	id, err = env.referrals.pendingReferralFor(ctx, uuid.New(), rc.Code)
	require.NoError(t, err)
	assert.Nil(t, id)
}
