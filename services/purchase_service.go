package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type PurchaseService struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	registry   *Registry
	calculator *Calculator
	referrals  *ReferralService
	log        zerolog.Logger
}

func NewPurchaseService(db *gorm.DB, cat *catalog.Catalog, registry *Registry, calculator *Calculator, referrals *ReferralService, log zerolog.Logger) *PurchaseService {
	return &PurchaseService{
		db:         db,
		catalog:    cat,
		registry:   registry,
		calculator: calculator,
		referrals:  referrals,
		log:        log,
	}
}

// PaymentConfirmation is the payment provider's verdict on a purchase.
type PaymentConfirmation struct {
	PurchaseID uuid.UUID
	PaymentID  string
	Succeeded  bool
}

// Create opens a pending purchase. Without an explicit code the buyer's
// registration code, if any, is applied.
func (s *PurchaseService) Create(ctx context.Context, buyerID uuid.UUID, planName, referralCode string) (models.Purchase, error) {
	plan, ok := s.catalog.Get(planName)
	if !ok {
		return models.Purchase{}, fmt.Errorf("%w: plan %q", ErrNotFound, planName)
	}

	var buyer models.User
	if err := s.db.WithContext(ctx).First(&buyer, "id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Purchase{}, fmt.Errorf("%w: user %s", ErrNotFound, buyerID)
		}
		return models.Purchase{}, err
	}
	if strings.TrimSpace(referralCode) == "" && buyer.ReferredByCode != nil {
		referralCode = *buyer.ReferredByCode
	}

	q, err := s.calculator.PriceForBuyer(ctx, plan, referralCode, buyerID)
	if err != nil {
		return models.Purchase{}, err
	}

	p := models.Purchase{
		UserID:        buyerID,
		PlanName:      plan.Name,
		OriginalPrice: q.OriginalPrice,
		Discount:      q.Discount,
		FinalPrice:    q.FinalPrice,
		Status:        models.PurchasePending,
	}
	if q.DiscountApplied {
		code := q.ReferralCode
		p.ReferralCode = &code
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return models.Purchase{}, err
	}

	s.log.Info().
		Str("purchase_id", p.ID.String()).
		Str("plan", p.PlanName).
		Str("final_price", p.FinalPrice.StringFixed(2)).
		Bool("discounted", q.DiscountApplied).
		Msg("purchase created")
	return p, nil
}

func (s *PurchaseService) Get(ctx context.Context, id uuid.UUID) (models.Purchase, error) {
	var p models.Purchase
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("%w: purchase %s", ErrNotFound, id)
	}
	return p, err
}

func (s *PurchaseService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&purchases).Error
	return purchases, err
}

// ConfirmPayment applies a payment result. Replaying a success for the same
// payment id is harmless: the purchase stays paid and the referrer is not
// credited again.
func (s *PurchaseService) ConfirmPayment(ctx context.Context, in PaymentConfirmation) (models.Purchase, error) {
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID == "" {
		return models.Purchase{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}

	p, err := s.Get(ctx, in.PurchaseID)
	if err != nil {
		return p, err
	}

	switch p.Status {
	case models.PurchasePaid:
		if p.PaymentID == nil || *p.PaymentID != in.PaymentID || !in.Succeeded {
			return p, fmt.Errorf("%w: purchase %s is already paid", ErrInvalidTransition, p.ID)
		}
	case models.PurchaseFailed:
		return p, fmt.Errorf("%w: purchase %s has failed", ErrInvalidTransition, p.ID)
	case models.PurchasePending:
		if !in.Succeeded {
			return s.markFailed(ctx, p)
		}
		if p, err = s.markPaid(ctx, p, in.PaymentID); err != nil {
			return p, err
		}
	}

	if err := s.creditReferrer(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PurchaseService) markPaid(ctx context.Context, p models.Purchase, paymentID string) (models.Purchase, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", p.ID, models.PurchasePending).
		Updates(map[string]any{
			"status":     models.PurchasePaid,
			"payment_id": paymentID,
			"paid_at":    now,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return p, fmt.Errorf("%w: payment %s already used", ErrConflict, paymentID)
		}
		return p, res.Error
	}
	if res.RowsAffected == 0 {
		return p, fmt.Errorf("%w: purchase %s changed concurrently", ErrConflict, p.ID)
	}

	p.Status = models.PurchasePaid
	p.PaymentID = &paymentID
	p.PaidAt = &now
	s.log.Info().Str("purchase_id", p.ID.String()).Str("payment_id", paymentID).Msg("purchase paid")
	return p, nil
}

func (s *PurchaseService) markFailed(ctx context.Context, p models.Purchase) (models.Purchase, error) {
	res := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", p.ID, models.PurchasePending).
		Update("status", models.PurchaseFailed)
	if res.Error != nil {
		return p, res.Error
	}
	if res.RowsAffected == 0 {
		return p, fmt.Errorf("%w: purchase %s changed concurrently", ErrConflict, p.ID)
	}
	p.Status = models.PurchaseFailed
	s.log.Info().Str("purchase_id", p.ID.String()).Msg("purchase payment failed")
	return p, nil
}

func (s *PurchaseService) creditReferrer(ctx context.Context, p models.Purchase) error {
	if p.ReferralCode == nil || p.PaymentID == nil {
		return nil
	}

	v, err := s.registry.ValidateCode(ctx, *p.ReferralCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Warn().Str("purchase_id", p.ID.String()).Str("code", *p.ReferralCode).Msg("referral code vanished before payment")
			return nil
		}
		return err
	}

	referralID, err := s.referrals.pendingReferralFor(ctx, p.UserID, v.Code)
	if err != nil {
		return err
	}

	_, err = s.calculator.CreditReferrer(ctx, CreditInput{
		OwnerUserID:    v.OwnerUserID,
		Discount:       p.Discount,
		IdempotencyKey: paymentKey(*p.PaymentID),
		ReferralID:     referralID,
	})
	if errors.Is(err, ErrAlreadyCredited) {
		return nil
	}
	return err
}
