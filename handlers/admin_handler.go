package handlers

import (
	"time"

	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdminHandler struct {
	admin    *services.AdminService
	wallets  *services.WalletService
	stipends *services.StipendService
}

func NewAdminHandler(admin *services.AdminService, wallets *services.WalletService, stipends *services.StipendService) *AdminHandler {
	return &AdminHandler{admin: admin, wallets: wallets, stipends: stipends}
}

func pageQuery(c *fiber.Ctx) services.PageQuery {
	return services.PageQuery{Page: c.QueryInt("page", 1), Limit: c.QueryInt("limit", 10)}
}

// GetDashboardStats returns the overview counters for the admin panel.
func (h *AdminHandler) GetDashboardStats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetAllUsers pages through accounts, filtered by ?search=.
func (h *AdminHandler) GetAllUsers(c *fiber.Ctx) error {
	page, err := h.admin.ListUsers(c.UserContext(), c.Query("search"), pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetPurchases pages through purchases, filtered by ?status=.
func (h *AdminHandler) GetPurchases(c *fiber.Ctx) error {
	status := models.PurchaseStatus(c.Query("status"))
	page, err := h.admin.ListPurchases(c.UserContext(), status, pageQuery(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

type ResolveWithdrawalRequest struct {
	Outcome    models.WithdrawalStatus `json:"outcome" validate:"required,oneof=completed failed"`
	AdminNotes string                  `json:"admin_notes,omitempty"`
}

// ListWithdrawals lists requests by ?status=, pending by default.
func (h *AdminHandler) ListWithdrawals(c *fiber.Ctx) error {
	status := models.WithdrawalStatus(c.Query("status", string(models.WithdrawalPending)))
	if status == "all" {
		status = ""
	}
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalCompleted, models.WithdrawalFailed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
	}

	requests, err := h.wallets.ListByStatus(c.UserContext(), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

func (h *AdminHandler) ResolveWithdrawal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid withdrawal ID"})
	}

	var req ResolveWithdrawalRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	wr, err := h.wallets.ResolveWithdrawal(c.UserContext(), id, req.Outcome, req.AdminNotes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wr)
}

// RunStipends disburses due stipends now instead of waiting for the job.
func (h *AdminHandler) RunStipends(c *fiber.Ctx) error {
	paid, err := h.stipends.DisburseDue(c.UserContext(), time.Now().UTC())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"paid": paid})
}
