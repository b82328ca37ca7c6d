package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/crypto_academy/events"
	"github.com/anjiri1684/crypto_academy/metrics"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/notifications"
	"github.com/anjiri1684/crypto_academy/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Policy holds the tunable business rules.
type Policy struct {
	MinWithdrawal decimal.Decimal
	ReferrerShare decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MinWithdrawal: decimal.NewFromInt(10),
		ReferrerShare: decimal.RequireFromString("0.5"),
	}
}

// Validate requires a positive minimum withdrawal and a referrer share within
// [0, 1]. A share outside that range would write credits the wallet never sees.
func (p Policy) Validate() error {
	if !p.MinWithdrawal.IsPositive() {
		return fmt.Errorf("%w: minimum withdrawal must be greater than zero", ErrInvalidInput)
	}
	if p.ReferrerShare.IsNegative() || p.ReferrerShare.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: referrer share must be between 0 and 1", ErrInvalidInput)
	}
	return nil
}

// WalletService owns balances and the withdrawal ledger. Every balance change
// for a user runs under that user's lock and inside one transaction that also
// row-locks the wallet.
type WalletService struct {
	db       *gorm.DB
	bus      events.Publisher
	notifier notifications.Notifier
	log      zerolog.Logger
	policy   Policy
	locks    *utils.KeyedMutex

	// reserveHook runs while the user's lock is held, before the balance is
	// read. Tests use it to observe overlapping reservations.
	reserveHook func(userID uuid.UUID)
}

func NewWalletService(db *gorm.DB, bus events.Publisher, notifier notifications.Notifier, policy Policy, log zerolog.Logger) *WalletService {
	if bus == nil {
		bus = events.Nop{}
	}
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	return &WalletService{
		db:       db,
		bus:      bus,
		notifier: notifier,
		log:      log,
		policy:   policy,
		locks:    utils.NewKeyedMutex(),
	}
}

type WithdrawalInput struct {
	Amount decimal.Decimal
	Method models.WithdrawalMethod
	Bank   *models.BankDetails
	Crypto *models.CryptoDetails
}

// lockUser must be taken before any transaction that touches the user's wallet.
func (s *WalletService) lockUser(userID uuid.UUID) func() {
	return s.locks.Lock(userID.String())
}

func (s *WalletService) ensureWallet(tx *gorm.DB, userID uuid.UUID) error {
	w := models.Wallet{UserID: userID, Available: decimal.Zero}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error
}

func (s *WalletService) lockWallet(tx *gorm.DB, userID uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return w, fmt.Errorf("%w: wallet for user %s", ErrNotFound, userID)
	}
	return w, err
}

// adjust moves delta into the user's wallet and journals it. A missing wallet
// is created for credits.
func (s *WalletService) adjust(tx *gorm.DB, userID uuid.UUID, delta decimal.Decimal, kind models.WalletTransactionKind, ref string) (models.WalletTransaction, error) {
	if delta.IsPositive() {
		if err := s.ensureWallet(tx, userID); err != nil {
			return models.WalletTransaction{}, err
		}
	}
	w, err := s.lockWallet(tx, userID)
	if errors.Is(err, ErrNotFound) && delta.IsNegative() {
		// no wallet row means nothing was ever credited
		return models.WalletTransaction{}, fmt.Errorf("%w: available 0.00, requested %s", ErrInsufficientFunds, delta.Neg().StringFixed(2))
	}
	if err != nil {
		return models.WalletTransaction{}, err
	}

	next := w.Available.Add(delta)
	if next.IsNegative() {
		return models.WalletTransaction{}, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, w.Available.StringFixed(2), delta.Neg().StringFixed(2))
	}
	if err := tx.Model(&models.Wallet{}).Where("user_id = ?", userID).Update("available", next).Error; err != nil {
		return models.WalletTransaction{}, err
	}

	entry := models.WalletTransaction{
		UserID:       userID,
		Kind:         kind,
		Amount:       delta,
		BalanceAfter: next,
		Reference:    ref,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return models.WalletTransaction{}, err
	}
	return entry, nil
}

// OpenWallet creates an empty wallet for a new account.
func (s *WalletService) OpenWallet(tx *gorm.DB, userID uuid.UUID) error {
	return s.ensureWallet(tx, userID)
}

// Balance reports the available funds. A user without a wallet has zero.
func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var w models.Wallet
	err := s.db.WithContext(ctx).First(&w, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Available, nil
}

func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.WalletTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *WalletService) validateWithdrawal(in *WithdrawalInput) error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if in.Amount.LessThan(s.policy.MinWithdrawal) {
		return fmt.Errorf("%w: minimum withdrawal is %s", ErrInvalidAmount, s.policy.MinWithdrawal.StringFixed(2))
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidAmount)
	}

	switch in.Method {
	case models.MethodBank:
		b := in.Bank
		if b == nil {
			return fmt.Errorf("%w: bank details are required", ErrInvalidInput)
		}
		b.AccountHolder = strings.TrimSpace(b.AccountHolder)
		b.BankName = strings.TrimSpace(b.BankName)
		b.AccountNumber = strings.TrimSpace(b.AccountNumber)
		b.RoutingCode = strings.TrimSpace(b.RoutingCode)
		if b.AccountHolder == "" || b.BankName == "" || b.AccountNumber == "" || b.RoutingCode == "" {
			return fmt.Errorf("%w: account holder, bank name, account number and routing code are required", ErrInvalidInput)
		}
	case models.MethodCrypto:
		c := in.Crypto
		if c == nil {
			return fmt.Errorf("%w: crypto details are required", ErrInvalidInput)
		}
		c.Network = models.CryptoNetwork(strings.ToUpper(strings.TrimSpace(string(c.Network))))
		c.Address = strings.TrimSpace(c.Address)
		if !c.Network.Valid() {
			return fmt.Errorf("%w: unsupported network %q", ErrInvalidInput, c.Network)
		}
		if c.Address == "" {
			return fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown withdrawal method %q", ErrInvalidInput, in.Method)
	}
	return nil
}

// RequestWithdrawal reserves the amount immediately and records a pending
// request.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (models.WithdrawalRequest, error) {
	if err := s.validateWithdrawal(&in); err != nil {
		metrics.WithdrawalsRequested.WithLabelValues(string(in.Method), "invalid").Inc()
		return models.WithdrawalRequest{}, err
	}

	unlock := s.lockUser(userID)
	defer unlock()
	if s.reserveHook != nil {
		s.reserveHook(userID)
	}

	req := models.WithdrawalRequest{
		UserID:      userID,
		Amount:      in.Amount.Round(2),
		Method:      in.Method,
		Status:      models.WithdrawalPending,
		RequestedAt: time.Now().UTC(),
	}
	if in.Bank != nil && in.Method == models.MethodBank {
		req.Bank = *in.Bank
	}
	if in.Crypto != nil && in.Method == models.MethodCrypto {
		req.Crypto = *in.Crypto
	}

	var entry models.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		var err error
		entry, err = s.adjust(tx, userID, req.Amount.Neg(), models.TxnWithdrawalReservation, req.ID.String())
		return err
	})
	if err != nil {
		result := "error"
		if errors.Is(err, ErrInsufficientFunds) {
			result = "insufficient_funds"
		}
		metrics.WithdrawalsRequested.WithLabelValues(string(in.Method), result).Inc()
		return models.WithdrawalRequest{}, err
	}

	metrics.WithdrawalsRequested.WithLabelValues(string(in.Method), "accepted").Inc()
	s.log.Info().
		Str("user_id", userID.String()).
		Str("withdrawal_id", req.ID.String()).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("withdrawal requested")
	s.publish(ctx, events.WithdrawalRequested, entry)
	return req, nil
}

// ResolveWithdrawal moves a pending request to a terminal state. A failed
// request returns its reservation to the wallet.
func (s *WalletService) ResolveWithdrawal(ctx context.Context, requestID uuid.UUID, outcome models.WithdrawalStatus, adminNotes string) (models.WithdrawalRequest, error) {
	if outcome != models.WithdrawalCompleted && outcome != models.WithdrawalFailed {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: outcome must be completed or failed", ErrInvalidInput)
	}

	var req models.WithdrawalRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return req, fmt.Errorf("%w: withdrawal request %s", ErrNotFound, requestID)
		}
		return req, err
	}

	unlock := s.lockUser(req.UserID)
	defer unlock()

	var entry *models.WalletTransaction
	balance := decimal.Zero
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", requestID).Error; err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %s is already %s", ErrInvalidTransition, req.ID, req.Status)
		}

		now := time.Now().UTC()
		req.Status = outcome
		req.ProcessedAt = &now
		if adminNotes != "" {
			req.AdminNotes = &adminNotes
		}
		if err := tx.Model(&req).Select("status", "processed_at", "admin_notes").Updates(&req).Error; err != nil {
			return err
		}

		if outcome == models.WithdrawalFailed {
			e, err := s.adjust(tx, req.UserID, req.Amount, models.TxnWithdrawalReversal, req.ID.String())
			if err != nil {
				return err
			}
			entry = &e
			return nil
		}

		w, err := s.lockWallet(tx, req.UserID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			balance = w.Available
		}
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	metrics.WithdrawalsResolved.WithLabelValues(string(outcome)).Inc()
	s.log.Info().
		Str("withdrawal_id", req.ID.String()).
		Str("outcome", string(outcome)).
		Msg("withdrawal resolved")

	if entry != nil {
		s.publish(ctx, events.WithdrawalFailed, *entry)
	} else {
		s.publishEvent(ctx, events.Event{
			Type:      events.WithdrawalCompleted,
			UserID:    req.UserID,
			Amount:    req.Amount.Neg(),
			Balance:   balance,
			Reference: req.ID.String(),
		})
	}
	s.notifyResolved(ctx, req)
	return req, nil
}

func (s *WalletService) notifyResolved(ctx context.Context, req models.WithdrawalRequest) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", req.UserID).Error; err != nil {
		s.log.Warn().Err(err).Str("user_id", req.UserID.String()).Msg("cannot notify withdrawal owner")
		return
	}

	if req.Status == models.WithdrawalCompleted {
		notifications.Send(s.notifier, s.log, user.FullName, user.Email,
			"Your Withdrawal Has Been Processed",
			fmt.Sprintf("<h1>Withdrawal Processed</h1><p>Hello %s,</p><p>Your withdrawal of $%s has been sent.</p>", user.FullName, req.Amount.StringFixed(2)),
		)
		return
	}
	notes := ""
	if req.AdminNotes != nil {
		notes = *req.AdminNotes
	}
	notifications.Send(s.notifier, s.log, user.FullName, user.Email,
		"Update on Your Withdrawal Request",
		fmt.Sprintf("<h1>Withdrawal Update</h1><p>Hello %s,</p><p>Your withdrawal of $%s could not be completed. The funds have been returned to your balance.</p><p><b>Notes:</b> %s</p>", user.FullName, req.Amount.StringFixed(2), notes),
	)
}

func (s *WalletService) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	var requests []models.WithdrawalRequest
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("requested_at desc").Find(&requests).Error
	return requests, err
}

// ListByStatus lists requests across users, oldest first. An empty status
// lists everything.
func (s *WalletService) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	q := s.db.WithContext(ctx).Order("requested_at asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var requests []models.WithdrawalRequest
	err := q.Find(&requests).Error
	return requests, err
}

func (s *WalletService) publish(ctx context.Context, typ events.Type, entry models.WalletTransaction) {
	s.publishEvent(ctx, events.Event{
		Type:      typ,
		UserID:    entry.UserID,
		Amount:    entry.Amount,
		Balance:   entry.BalanceAfter,
		Reference: entry.Reference,
	})
}

func (s *WalletService) publishEvent(ctx context.Context, ev events.Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to publish wallet event")
	}
}
