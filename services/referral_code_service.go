package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anjiri1684/crypto_academy/metrics"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const maxCodeAttempts = 10

// Registry issues and resolves referral codes. Issuance is serialised in
// process; the unique indexes on referral_codes cover other instances.
type Registry struct {
	db       *gorm.DB
	log      zerolog.Logger
	mu       sync.Mutex
	generate func() (string, error)
}

type RegistryOption func(*Registry)

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) RegistryOption {
	return func(r *Registry) { r.generate = gen }
}

func NewRegistry(db *gorm.DB, log zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		db:  db,
		log: log,
		generate: func() (string, error) {
			return utils.GenerateReferralCode(nil)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type CodeValidation struct {
	Valid       bool      `json:"valid"`
	Code        string    `json:"code"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
}

// IssueCode returns the owner's code, creating one on first call.
func (r *Registry) IssueCode(ctx context.Context, ownerUserID uuid.UUID) (models.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var issued models.ReferralCode
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("owner_user_id = ?", ownerUserID).First(&issued).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var owners int64
		if err := tx.Model(&models.User{}).Where("id = ?", ownerUserID).Count(&owners).Error; err != nil {
			return err
		}
		if owners == 0 {
			return fmt.Errorf("%w: user %s", ErrNotFound, ownerUserID)
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := r.generate()
			if err != nil {
				return fmt.Errorf("generate referral code: %w", err)
			}

			var taken int64
			if err := tx.Model(&models.ReferralCode{}).Where("code = ?", code).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				r.log.Debug().Str("code", code).Msg("referral code collision, retrying")
				continue
			}

			issued = models.ReferralCode{Code: code, OwnerUserID: ownerUserID}
			if err := tx.Create(&issued).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: referral code issued concurrently", ErrConflict)
				}
				return err
			}
			created = true
			return nil
		}
		return fmt.Errorf("%w: no unique referral code after %d attempts", ErrConflict, maxCodeAttempts)
	})
	if err != nil {
		return models.ReferralCode{}, err
	}

	if created {
		metrics.CodesIssued.Inc()
		r.log.Info().Str("user_id", ownerUserID.String()).Str("code", issued.Code).Msg("referral code issued")
	}
	return issued, nil
}

// ValidateCode resolves a code to its owner. The owner's own state is not
// consulted.
func (r *Registry) ValidateCode(ctx context.Context, code string) (CodeValidation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return CodeValidation{}, fmt.Errorf("%w: referral code is required", ErrInvalidInput)
	}
	if !utils.IsReferralCode(code) {
		return CodeValidation{Code: code}, fmt.Errorf("%w: referral code %q", ErrNotFound, code)
	}

	var rc models.ReferralCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CodeValidation{Code: code}, fmt.Errorf("%w: referral code %q", ErrNotFound, code)
	}
	if err != nil {
		return CodeValidation{}, err
	}
	return CodeValidation{Valid: true, Code: rc.Code, OwnerUserID: rc.OwnerUserID}, nil
}

// CodeFor returns the owner's code without issuing one.
func (r *Registry) CodeFor(ctx context.Context, ownerUserID uuid.UUID) (string, error) {
	var rc models.ReferralCode
	err := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return rc.Code, err
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
