package handlers

import (
	"errors"

	"github.com/anjiri1684/crypto_academy/middleware"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
)

type ReferralHandler struct {
	referrals *services.ReferralService
	registry  *services.Registry
}

func NewReferralHandler(referrals *services.ReferralService, registry *services.Registry) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, registry: registry}
}

type RecordReferralRequest struct {
	Code     string `json:"code" validate:"required"`
	UserName string `json:"user_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type ValidateCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

type TrackRequest struct {
	ReferralCode  string `json:"referral_code" validate:"required"`
	PlanName      string `json:"plan_name" validate:"required"`
	PaymentID     string `json:"payment_id" validate:"required"`
	ReferredEmail string `json:"referred_user_email,omitempty" validate:"omitempty,email"`
}

// Record stores a use of a referral code.
func (h *ReferralHandler) Record(c *fiber.Ctx) error {
	var req RecordReferralRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ref, err := h.referrals.RecordReferral(c.UserContext(), services.RecordReferralInput{
		Code:     req.Code,
		UserName: req.UserName,
		Email:    req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ref)
}

// List returns the referrals made with ?code=. Only the code's owner and
// admins may look.
func (h *ReferralHandler) List(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code query parameter is required"})
	}

	v, err := h.registry.ValidateCode(c.UserContext(), code)
	if err != nil {
		return respondError(c, err)
	}
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}
	if v.OwnerUserID != userID && middleware.CurrentRole(c) != models.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: not your referral code"})
	}

	referrals, err := h.referrals.ListByCode(c.UserContext(), v.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(referrals)
}

func (h *ReferralHandler) Validate(c *fiber.Ctx) error {
	var req ValidateCodeRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	v, err := h.registry.ValidateCode(c.UserContext(), req.Code)
	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"valid": false, "error": err.Error()})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(v)
}

// Track confirms a referred purchase paid outside the purchase flow.
func (h *ReferralHandler) Track(c *fiber.Ctx) error {
	var req TrackRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	credit, err := h.referrals.Track(c.UserContext(), services.TrackInput{
		Code:          req.ReferralCode,
		PlanName:      req.PlanName,
		PaymentID:     req.PaymentID,
		ReferredEmail: req.ReferredEmail,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(credit)
}

func (h *ReferralHandler) Stats(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	stats, err := h.referrals.Stats(c.UserContext(), userID, c.Query("plan"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (h *ReferralHandler) MyCode(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	rc, err := h.registry.IssueCode(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rc)
}
