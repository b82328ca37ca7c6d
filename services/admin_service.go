package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PageQuery selects one page of an admin listing. Page is 1-based.
type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q
}

func (q PageQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

type PageMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"last_page"`
}

func newPageMeta(total int64, q PageQuery) PageMeta {
	last := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	if last < 1 {
		last = 1
	}
	return PageMeta{Total: total, Page: q.Page, LastPage: last}
}

type UserPage struct {
	Data []models.User `json:"data"`
	Meta PageMeta      `json:"meta"`
}

type PurchasePage struct {
	Data []models.Purchase `json:"data"`
	Meta PageMeta          `json:"meta"`
}

// DashboardStats backs the admin overview cards.
type DashboardStats struct {
	TotalUsers         int64           `json:"total_users"`
	PaidPurchases      int64           `json:"paid_purchases"`
	Revenue            decimal.Decimal `json:"revenue"`
	TotalReferrals     int64           `json:"total_referrals"`
	ActiveReferrals    int64           `json:"active_referrals"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
}

// AdminService serves the read-only admin listings.
type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// ListUsers pages through accounts, newest first. search matches name or
// email case-insensitively.
func (s *AdminService) ListUsers(ctx context.Context, search string, q PageQuery) (UserPage, error) {
	q = q.normalize()
	search = strings.TrimSpace(search)
	filtered := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.User{})
		if search != "" {
			term := "%" + strings.ToLower(search) + "%"
			query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", term, term)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return UserPage{}, err
	}
	users := []models.User{}
	if err := filtered().Order("created_at desc").Offset(q.offset()).Limit(q.Limit).Find(&users).Error; err != nil {
		return UserPage{}, err
	}
	return UserPage{Data: users, Meta: newPageMeta(total, q)}, nil
}

// ListPurchases pages through purchases, newest first. An empty status lists
// everything.
func (s *AdminService) ListPurchases(ctx context.Context, status models.PurchaseStatus, q PageQuery) (PurchasePage, error) {
	switch status {
	case "", models.PurchasePending, models.PurchasePaid, models.PurchaseFailed:
	default:
		return PurchasePage{}, fmt.Errorf("%w: unknown purchase status %q", ErrInvalidInput, status)
	}

	q = q.normalize()
	filtered := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.Purchase{})
		if status != "" {
			query = query.Where("status = ?", status)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return PurchasePage{}, err
	}
	purchases := []models.Purchase{}
	if err := filtered().Order("created_at desc").Offset(q.offset()).Limit(q.Limit).Find(&purchases).Error; err != nil {
		return PurchasePage{}, err
	}
	return PurchasePage{Data: purchases, Meta: newPageMeta(total, q)}, nil
}

func (s *AdminService) Stats(ctx context.Context) (DashboardStats, error) {
	var st DashboardStats
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.User{}).Where("role = ?", models.RoleStudent).Count(&st.TotalUsers).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.Purchase{}).Where("status = ?", models.PurchasePaid).Count(&st.PaidPurchases).Error; err != nil {
		return st, err
	}
	var revenue decimal.NullDecimal
	if err := db.Model(&models.Purchase{}).
		Where("status = ?", models.PurchasePaid).
		Select("SUM(final_price)").
		Row().Scan(&revenue); err != nil {
		return st, err
	}
	st.Revenue = revenue.Decimal.Round(2)

	if err := db.Model(&models.Referral{}).Count(&st.TotalReferrals).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.Referral{}).Where("status = ?", models.ReferralActive).Count(&st.ActiveReferrals).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.WithdrawalRequest{}).Where("status = ?", models.WithdrawalPending).Count(&st.PendingWithdrawals).Error; err != nil {
		return st, err
	}
	return st, nil
}
