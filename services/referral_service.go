package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReferralService struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	registry   *Registry
	calculator *Calculator
	bus        events.Publisher
	log        zerolog.Logger
}

func NewReferralService(db *gorm.DB, cat *catalog.Catalog, registry *Registry, calculator *Calculator, bus events.Publisher, log zerolog.Logger) *ReferralService {
	if bus == nil {
		bus = events.Nop{}
	}
	return &ReferralService{
		db:         db,
		catalog:    cat,
		registry:   registry,
		calculator: calculator,
		bus:        bus,
		log:        log,
	}
}

type RecordReferralInput struct {
	Code           string
	UserName       string
	Email          string
	ReferredUserID *uuid.UUID
}

// LedgerEntry is always computed from the referral and credit rows.
type LedgerEntry struct {
	Code            string          `json:"code"`
	TotalReferrals  int64           `json:"total_referrals"`
	ActiveReferrals int64           `json:"active_referrals"`
	AccruedEarnings decimal.Decimal `json:"accrued_earnings"`
}

type ReferralStats struct {
	LedgerEntry
	Plan       string            `json:"plan"`
	Tier       TierStatus        `json:"tier"`
	Milestones MilestoneStatus   `json:"milestones"`
	Referrals  []models.Referral `json:"referrals"`
}

type TrackInput struct {
	Code          string
	PlanName      string
	PaymentID     string
	ReferredEmail string
}

// RecordReferral stores a pending referral against a known code.
func (s *ReferralService) RecordReferral(ctx context.Context, in RecordReferralInput) (models.Referral, error) {
	v, err := s.registry.ValidateCode(ctx, in.Code)
	if err != nil {
		return models.Referral{}, err
	}
	ref, err := s.insertReferral(s.db.WithContext(ctx), v, in)
	if err != nil {
		return models.Referral{}, err
	}
	s.referralRecorded(ctx, v, ref)
	return ref, nil
}

// insertReferral writes the referral row through db, which may be a
// transaction. The code must already be validated.
func (s *ReferralService) insertReferral(db *gorm.DB, v CodeValidation, in RecordReferralInput) (models.Referral, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.UserName == "" {
		return models.Referral{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return models.Referral{}, fmt.Errorf("%w: invalid email %q", ErrInvalidInput, in.Email)
	}

	var existing int64
	if err := db.Model(&models.Referral{}).Where("code = ? AND referred_user_email = ?", v.Code, in.Email).Count(&existing).Error; err != nil {
		return models.Referral{}, err
	}
	if existing > 0 {
		return models.Referral{}, fmt.Errorf("%w: %s was already referred with code %s", ErrConflict, in.Email, v.Code)
	}

	ref := models.Referral{
		Code:              v.Code,
		ReferredUserID:    in.ReferredUserID,
		ReferredUserName:  in.UserName,
		ReferredUserEmail: in.Email,
		Status:            models.ReferralPending,
		JoinedAt:          time.Now().UTC(),
	}
	if err := db.Create(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Referral{}, fmt.Errorf("%w: referral already recorded", ErrConflict)
		}
		return models.Referral{}, err
	}
	return ref, nil
}

func (s *ReferralService) referralRecorded(ctx context.Context, v CodeValidation, ref models.Referral) {
	s.log.Info().Str("code", v.Code).Str("referral_id", ref.ID.String()).Msg("referral recorded")
	if err := s.bus.Publish(ctx, events.Event{Type: events.ReferralRecorded, UserID: v.OwnerUserID, Reference: ref.ID.String()}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish referral event")
	}
}

// ListByCode returns the referrals made with code, newest first.
func (s *ReferralService) ListByCode(ctx context.Context, code string) ([]models.Referral, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: referral code is required", ErrInvalidInput)
	}
	var referrals []models.Referral
	err := s.db.WithContext(ctx).Where("code = ?", code).Order("joined_at desc").Find(&referrals).Error
	return referrals, err
}

// Ledger derives the owner's referral totals.
func (s *ReferralService) Ledger(ctx context.Context, ownerUserID uuid.UUID) (LedgerEntry, error) {
	entry := LedgerEntry{AccruedEarnings: decimal.Zero}

	code, err := s.registry.CodeFor(ctx, ownerUserID)
	if err != nil {
		return entry, err
	}
	entry.Code = code

	db := s.db.WithContext(ctx)
	if code != "" {
		if err := db.Model(&models.Referral{}).Where("code = ?", code).Count(&entry.TotalReferrals).Error; err != nil {
			return entry, err
		}
		if err := db.Model(&models.Referral{}).Where("code = ? AND status = ?", code, models.ReferralActive).Count(&entry.ActiveReferrals).Error; err != nil {
			return entry, err
		}
	}

	var credits []models.ReferralCredit
	if err := db.Select("amount").Where("owner_user_id = ?", ownerUserID).Find(&credits).Error; err != nil {
		return entry, err
	}
	for _, c := range credits {
		entry.AccruedEarnings = entry.AccruedEarnings.Add(c.Amount)
	}
	return entry, nil
}

// Stats evaluates the owner's ledger against a plan's tiers and milestones.
// With no plan name the owner's latest paid plan is used, then the first
// catalog plan.
func (s *ReferralService) Stats(ctx context.Context, ownerUserID uuid.UUID, planName string) (ReferralStats, error) {
	plan, err := s.planFor(ctx, ownerUserID, planName)
	if err != nil {
		return ReferralStats{}, err
	}

	entry, err := s.Ledger(ctx, ownerUserID)
	if err != nil {
		return ReferralStats{}, err
	}

	referrals := []models.Referral{}
	if entry.Code != "" {
		if referrals, err = s.ListByCode(ctx, entry.Code); err != nil {
			return ReferralStats{}, err
		}
	}

	count := int(entry.ActiveReferrals)
	return ReferralStats{
		LedgerEntry: entry,
		Plan:        plan.Name,
		Tier:        CurrentTier(count, plan),
		Milestones:  MilestonesFor(count, plan),
		Referrals:   referrals,
	}, nil
}

func (s *ReferralService) planFor(ctx context.Context, userID uuid.UUID, planName string) (catalog.Plan, error) {
	if planName != "" {
		plan, ok := s.catalog.Get(planName)
		if !ok {
			return catalog.Plan{}, fmt.Errorf("%w: plan %q", ErrNotFound, planName)
		}
		return plan, nil
	}

	var latest models.Purchase
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PurchasePaid).
		Order("paid_at desc").
		First(&latest).Error
	if err == nil {
		if plan, ok := s.catalog.Get(latest.PlanName); ok {
			return plan, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Plan{}, err
	}
	return s.catalog.First(), nil
}

// Track handles a confirmed purchase made with a referral code: the matching
// pending referral becomes active and the referrer is credited once per
// payment id.
func (s *ReferralService) Track(ctx context.Context, in TrackInput) (models.ReferralCredit, error) {
	if strings.TrimSpace(in.PaymentID) == "" {
		return models.ReferralCredit{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	plan, ok := s.catalog.Get(in.PlanName)
	if !ok {
		return models.ReferralCredit{}, fmt.Errorf("%w: plan %q", ErrNotFound, in.PlanName)
	}

	v, err := s.registry.ValidateCode(ctx, in.Code)
	if err != nil {
		return models.ReferralCredit{}, err
	}

	var referralID *uuid.UUID
	if email := strings.ToLower(strings.TrimSpace(in.ReferredEmail)); email != "" {
		var ref models.Referral
		err := s.db.WithContext(ctx).
			Where("code = ? AND referred_user_email = ? AND status = ?", v.Code, email, models.ReferralPending).
			First(&ref).Error
		switch {
		case err == nil:
			referralID = &ref.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return models.ReferralCredit{}, err
		}
	}

	return s.calculator.CreditReferrer(ctx, CreditInput{
		OwnerUserID:    v.OwnerUserID,
		Discount:       PlanDiscount(plan),
		IdempotencyKey: paymentKey(in.PaymentID),
		ReferralID:     referralID,
	})
}

// pendingReferralFor finds the buyer's own pending referral made with code.
func (s *ReferralService) pendingReferralFor(ctx context.Context, buyerID uuid.UUID, code string) (*uuid.UUID, error) {
	var ref models.Referral
	err := s.db.WithContext(ctx).
		Where("referred_user_id = ? AND code = ? AND status = ?", buyerID, code, models.ReferralPending).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref.ID, nil
}

func paymentKey(paymentID string) string {
	return "payment:" + strings.TrimSpace(paymentID)
}
