package handlers

import (
	"github.com/anjiri1684/crypto_academy/middleware"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PurchaseHandler struct {
	purchases *services.PurchaseService
}

func NewPurchaseHandler(purchases *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

type CreatePurchaseRequest struct {
	PlanName     string `json:"plan_name" validate:"required"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type PaymentWebhookRequest struct {
	PurchaseID string `json:"purchase_id" validate:"required,uuid"`
	PaymentID  string `json:"payment_id" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=succeeded failed"`
}

func (h *PurchaseHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	var req CreatePurchaseRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	p, err := h.purchases.Create(c.UserContext(), userID, req.PlanName, req.ReferralCode)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *PurchaseHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	purchases, err := h.purchases.ListForUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(purchases)
}

// PaymentWebhook receives the provider's verdict on a purchase.
func (h *PurchaseHandler) PaymentWebhook(c *fiber.Ctx) error {
	var req PaymentWebhookRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	p, err := h.purchases.ConfirmPayment(c.UserContext(), services.PaymentConfirmation{
		PurchaseID: uuid.MustParse(req.PurchaseID),
		PaymentID:  req.PaymentID,
		Succeeded:  req.Status == "succeeded",
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Webhook processed", "purchase": p})
}
