package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 72 * time.Hour

type AccountService struct {
	db        *gorm.DB
	registry  *Registry
	referrals *ReferralService
	wallets   *WalletService
	jwtSecret []byte
	log       zerolog.Logger
}

func NewAccountService(db *gorm.DB, registry *Registry, referrals *ReferralService, wallets *WalletService, jwtSecret string, log zerolog.Logger) *AccountService {
	return &AccountService{
		db:        db,
		registry:  registry,
		referrals: referrals,
		wallets:   wallets,
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
}

type RegisterInput struct {
	FullName       string
	Email          string
	Password       string
	ReferredByCode string
}

type Registration struct {
	User         models.User `json:"user"`
	ReferralCode string      `json:"referral_code"`
}

// Register creates the account with an empty wallet and its own referral
// code. A valid referred-by code records a pending referral; an unknown one is
// ignored.
func (a *AccountService) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Registration{}, fmt.Errorf("hash password: %w", err)
	}

	var referrer *CodeValidation
	if code := NormalizeCode(in.ReferredByCode); code != "" {
		v, err := a.registry.ValidateCode(ctx, code)
		switch {
		case err == nil:
			referrer = &v
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
			a.log.Info().Str("code", code).Msg("invalid referral code used at registration")
		default:
			return Registration{}, err
		}
	}

	user := models.User{
		FullName: strings.TrimSpace(in.FullName),
		Email:    email,
		Password: string(hashed),
		Role:     models.RoleStudent,
	}
	if referrer != nil {
		user.ReferredByCode = &referrer.Code
	}

	var referral models.Referral
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: email already exists", ErrConflict)
		}

		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: email already exists", ErrConflict)
			}
			return err
		}
		if err := a.wallets.OpenWallet(tx, user.ID); err != nil {
			return err
		}

		if referrer != nil {
			var err error
			referral, err = a.referrals.insertReferral(tx, *referrer, RecordReferralInput{
				UserName:       user.FullName,
				Email:          user.Email,
				ReferredUserID: &user.ID,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Registration{}, err
	}

	reg := Registration{User: user}
	if referrer != nil {
		a.referrals.referralRecorded(ctx, *referrer, referral)
	}

	code, err := a.registry.IssueCode(ctx, user.ID)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("referral code not issued at registration")
	} else {
		reg.ReferralCode = code.Code
	}

	a.log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return reg, nil
}

// Login returns a signed bearer token for valid credentials.
func (a *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	var user models.User
	err := a.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	return a.IssueToken(user)
}

func (a *AccountService) IssueToken(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"role":    user.Role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ParseToken verifies a bearer token and returns its subject.
func (a *AccountService) ParseToken(raw string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}
	sub, _ := claims["user_id"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: invalid user id", ErrUnauthorized)
	}
	role, _ := claims["role"].(string)
	return id, role, nil
}

func (a *AccountService) User(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	err := a.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return user, err
}

// SeedAdmin creates the admin account once.
func (a *AccountService) SeedAdmin(ctx context.Context, email, password, fullName string) error {
	if email == "" || password == "" {
		a.log.Warn().Msg("admin credentials not configured, skipping admin seed")
		return nil
	}

	var count int64
	if err := a.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", strings.ToLower(email)).Count(&count).Error; err != nil {
		return fmt.Errorf("check for admin user: %w", err)
	}
	if count > 0 {
		a.log.Debug().Msg("admin user already exists")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := models.User{
		FullName: fullName,
		Email:    strings.ToLower(email),
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		return a.wallets.OpenWallet(tx, admin.ID)
	})
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	a.log.Info().Str("email", admin.Email).Msg("admin user seeded")
	return nil
}
