package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/metrics"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/notifications"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	Plan            string          `json:"plan"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	Discount        decimal.Decimal `json:"discount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	DiscountApplied bool            `json:"discount_applied"`
	ReferralCode    string          `json:"referral_code,omitempty"`
}

// PlanDiscount is the buyer discount a valid code earns on plan, capped at the
// plan price and rounded to cents.
func PlanDiscount(plan catalog.Plan) decimal.Decimal {
	b := plan.ReferralBonus
	var d decimal.Decimal
	switch b.Type {
	case catalog.BonusPercentage:
		d = plan.Price.Mul(b.Amount).Div(hundred)
	case catalog.BonusFixed:
		d = b.Amount
	}
	d = d.Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(plan.Price) {
		return plan.Price
	}
	return d
}

// QuotePlan prices plan with or without the referral discount.
func QuotePlan(plan catalog.Plan, withDiscount bool) Quote {
	q := Quote{
		Plan:          plan.Name,
		OriginalPrice: plan.Price,
		Discount:      decimal.Zero,
		FinalPrice:    plan.Price,
	}
	if !withDiscount {
		return q
	}
	q.Discount = PlanDiscount(plan)
	q.FinalPrice = decimal.Max(decimal.Zero, plan.Price.Sub(q.Discount))
	q.DiscountApplied = q.Discount.IsPositive()
	return q
}

type NextTier struct {
	catalog.Tier
	Remaining int `json:"remaining"`
}

type TierStatus struct {
	Current *catalog.Tier   `json:"current,omitempty"`
	Bonus   decimal.Decimal `json:"bonus"`
	Next    *NextTier       `json:"next,omitempty"`
}

// CurrentTier finds the highest tier whose threshold the count has met and the
// first one it has not.
func CurrentTier(referralCount int, plan catalog.Plan) TierStatus {
	st := TierStatus{Bonus: decimal.Zero}
	for i := range plan.ReferralBonus.Tiers {
		t := plan.ReferralBonus.Tiers[i]
		if t.Threshold <= referralCount {
			st.Current = &t
			st.Bonus = t.BonusAmount
			continue
		}
		st.Next = &NextTier{Tier: t, Remaining: t.Threshold - referralCount}
		break
	}
	return st
}

type NextMilestone struct {
	catalog.Milestone
	Remaining int `json:"remaining"`
}

type MilestoneStatus struct {
	Achieved []catalog.Milestone `json:"achieved"`
	Next     *NextMilestone      `json:"next,omitempty"`
}

func MilestonesFor(referralCount int, plan catalog.Plan) MilestoneStatus {
	st := MilestoneStatus{Achieved: []catalog.Milestone{}}
	for _, m := range plan.ReferralBonus.Milestones {
		if m.Threshold <= referralCount {
			st.Achieved = append(st.Achieved, m)
			continue
		}
		if st.Next == nil {
			st.Next = &NextMilestone{Milestone: m, Remaining: m.Threshold - referralCount}
		}
	}
	return st
}

// Calculator applies referral codes to plan prices and pays referrers their
// share of the discount.
type Calculator struct {
	db       *gorm.DB
	registry *Registry
	wallets  *WalletService
	notifier notifications.Notifier
	policy   Policy
	log      zerolog.Logger
}

func NewCalculator(db *gorm.DB, registry *Registry, wallets *WalletService, notifier notifications.Notifier, policy Policy, log zerolog.Logger) *Calculator {
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	return &Calculator{
		db:       db,
		registry: registry,
		wallets:  wallets,
		notifier: notifier,
		policy:   policy,
		log:      log,
	}
}

// PriceForBuyer quotes plan for buyerID. Unknown, malformed and self-owned
// codes yield the undiscounted price rather than an error.
func (c *Calculator) PriceForBuyer(ctx context.Context, plan catalog.Plan, referralCode string, buyerID uuid.UUID) (Quote, error) {
	referralCode = NormalizeCode(referralCode)
	if referralCode == "" {
		return QuotePlan(plan, false), nil
	}

	v, err := c.registry.ValidateCode(ctx, referralCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return QuotePlan(plan, false), nil
		}
		return Quote{}, err
	}
	if buyerID != uuid.Nil && v.OwnerUserID == buyerID {
		c.log.Debug().Str("user_id", buyerID.String()).Msg("ignoring self-referral code")
		return QuotePlan(plan, false), nil
	}

	q := QuotePlan(plan, true)
	if q.DiscountApplied {
		q.ReferralCode = v.Code
	}
	return q, nil
}

// ReferrerEarning is the referrer's cut of a buyer discount.
func (c *Calculator) ReferrerEarning(discount decimal.Decimal) decimal.Decimal {
	return discount.Mul(c.policy.ReferrerShare).Round(2)
}

type CreditInput struct {
	OwnerUserID    uuid.UUID
	Discount       decimal.Decimal
	IdempotencyKey string
	// ReferralID, when set, is moved from pending to active in the same
	// transaction as the credit.
	ReferralID *uuid.UUID
}

// CreditReferrer pays the owner their share of discount once per idempotency
// key. A repeated key fails with ErrAlreadyCredited and changes nothing.
func (c *Calculator) CreditReferrer(ctx context.Context, in CreditInput) (models.ReferralCredit, error) {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return models.ReferralCredit{}, fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	if in.OwnerUserID == uuid.Nil {
		return models.ReferralCredit{}, fmt.Errorf("%w: referrer is required", ErrInvalidInput)
	}
	if in.Discount.IsNegative() {
		return models.ReferralCredit{}, fmt.Errorf("%w: discount must not be negative", ErrInvalidAmount)
	}
	// the ledger is derived from credits, so a credit the wallet cannot take
	// must never be written
	amount := c.ReferrerEarning(in.Discount)
	if amount.IsNegative() {
		return models.ReferralCredit{}, fmt.Errorf("%w: referrer share must not be negative", ErrInvalidAmount)
	}

	unlock := c.wallets.lockUser(in.OwnerUserID)
	defer unlock()

	credit := models.ReferralCredit{
		IdempotencyKey: in.IdempotencyKey,
		OwnerUserID:    in.OwnerUserID,
		ReferralID:     in.ReferralID,
		Discount:       in.Discount.Round(2),
		Amount:         amount,
	}

	var entry *models.WalletTransaction
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&models.ReferralCredit{}).Where("idempotency_key = ?", in.IdempotencyKey).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return fmt.Errorf("%w: key %s", ErrAlreadyCredited, in.IdempotencyKey)
		}

		if in.ReferralID != nil {
			if err := activateReferral(tx, *in.ReferralID); err != nil {
				return err
			}
		}

		if err := tx.Create(&credit).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: key %s", ErrAlreadyCredited, in.IdempotencyKey)
			}
			return err
		}

		if credit.Amount.IsPositive() {
			e, err := c.wallets.adjust(tx, in.OwnerUserID, credit.Amount, models.TxnReferralCredit, in.IdempotencyKey)
			if err != nil {
				return err
			}
			entry = &e
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCredited) {
			metrics.ReferralCredits.WithLabelValues("duplicate").Inc()
			c.log.Warn().Str("idempotency_key", in.IdempotencyKey).Msg("rejected duplicate referral credit")
		} else {
			metrics.ReferralCredits.WithLabelValues("error").Inc()
		}
		return models.ReferralCredit{}, err
	}

	metrics.ReferralCredits.WithLabelValues("credited").Inc()
	c.log.Info().
		Str("user_id", in.OwnerUserID.String()).
		Str("idempotency_key", in.IdempotencyKey).
		Str("amount", credit.Amount.StringFixed(2)).
		Msg("referrer credited")

	if entry != nil {
		c.wallets.publish(ctx, events.ReferralCredited, *entry)
		c.notifyCredited(ctx, credit)
	}
	return credit, nil
}

func activateReferral(tx *gorm.DB, referralID uuid.UUID) error {
	var ref models.Referral
	if err := tx.First(&ref, "id = ?", referralID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: referral %s", ErrNotFound, referralID)
		}
		return err
	}
	if ref.Status == models.ReferralActive {
		return nil
	}
	return tx.Model(&ref).Updates(map[string]any{
		"status":       models.ReferralActive,
		"activated_at": time.Now().UTC(),
	}).Error
}

func (c *Calculator) notifyCredited(ctx context.Context, credit models.ReferralCredit) {
	var owner models.User
	if err := c.db.WithContext(ctx).First(&owner, "id = ?", credit.OwnerUserID).Error; err != nil {
		c.log.Warn().Err(err).Str("user_id", credit.OwnerUserID.String()).Msg("cannot notify referrer")
		return
	}
	notifications.Send(c.notifier, c.log, owner.FullName, owner.Email,
		"You've Earned a Referral Credit!",
		fmt.Sprintf("<h1>Congratulations!</h1><p>Someone you referred has completed their purchase. A credit of $%s has been added to your wallet.</p>", credit.Amount.StringFixed(2)),
	)
}
