package handlers

import (
	"github.com/anjiri1684/crypto_academy/catalog"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PlanHandler struct {
	catalog    *catalog.Catalog
	calculator *services.Calculator
}

func NewPlanHandler(cat *catalog.Catalog, calculator *services.Calculator) *PlanHandler {
	return &PlanHandler{catalog: cat, calculator: calculator}
}

type QuoteRequest struct {
	ReferralCode string `json:"referral_code"`
}

func (h *PlanHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.catalog.Plans())
}

func (h *PlanHandler) Get(c *fiber.Ctx) error {
	plan, ok := h.catalog.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Plan not found"})
	}
	return c.JSON(plan)
}

// Quote prices a plan for an anonymous buyer.
func (h *PlanHandler) Quote(c *fiber.Ctx) error {
	plan, ok := h.catalog.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Plan not found"})
	}

	var req QuoteRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	q, err := h.calculator.PriceForBuyer(c.UserContext(), plan, req.ReferralCode, uuid.Nil)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(q)
}
