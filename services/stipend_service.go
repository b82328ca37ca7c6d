package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/metrics"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// StipendService pays the monthly stipend that some plans carry. Month k of a
// purchase falls due k calendar months after payment.
type StipendService struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	wallets *WalletService
	log     zerolog.Logger
}

func NewStipendService(db *gorm.DB, cat *catalog.Catalog, wallets *WalletService, log zerolog.Logger) *StipendService {
	return &StipendService{db: db, catalog: cat, wallets: wallets, log: log}
}

// DisburseDue credits every stipend month due by now and not yet paid. It
// returns how many payments it made.
func (s *StipendService) DisburseDue(ctx context.Context, now time.Time) (int, error) {
	var purchases []models.Purchase
	err := s.db.WithContext(ctx).
		Where("status = ? AND paid_at IS NOT NULL", models.PurchasePaid).
		Find(&purchases).Error
	if err != nil {
		return 0, err
	}

	paid := 0
	for _, p := range purchases {
		plan, ok := s.catalog.Get(p.PlanName)
		if !ok || plan.Stipend == nil {
			continue
		}
		for month := 1; month <= plan.Stipend.Months; month++ {
			if p.PaidAt.AddDate(0, month, 0).After(now) {
				break
			}
			ok, err := s.payMonth(ctx, p, month, *plan.Stipend)
			if err != nil {
				return paid, fmt.Errorf("stipend for purchase %s month %d: %w", p.ID, month, err)
			}
			if ok {
				paid++
			}
		}
	}
	return paid, nil
}

var errStipendPaid = errors.New("stipend month already paid")

func (s *StipendService) payMonth(ctx context.Context, p models.Purchase, month int, stipend catalog.Stipend) (bool, error) {
	unlock := s.wallets.lockUser(p.UserID)
	defer unlock()

	ref := fmt.Sprintf("stipend:%s:%d", p.ID, month)
	var entry models.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var done int64
		if err := tx.Model(&models.StipendPayment{}).Where("purchase_id = ? AND month_index = ?", p.ID, month).Count(&done).Error; err != nil {
			return err
		}
		if done > 0 {
			return errStipendPaid
		}

		payment := models.StipendPayment{
			PurchaseID: p.ID,
			MonthIndex: month,
			UserID:     p.UserID,
			Amount:     stipend.Amount,
			PaidAt:     time.Now().UTC(),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		var err error
		entry, err = s.wallets.adjust(tx, p.UserID, stipend.Amount, models.TxnStipend, ref)
		return err
	})
	if errors.Is(err, errStipendPaid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.StipendsPaid.Inc()
	s.log.Info().Str("user_id", p.UserID.String()).Str("reference", ref).Msg("stipend paid")
	s.wallets.publish(ctx, events.StipendPaid, entry)
	return true, nil
}
