package handlers

import (
	"github.com/anjiri1684/crypto_academy/middleware"
	"github.com/anjiri1684/crypto_academy/models"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	wallets *services.WalletService
}

func NewWalletHandler(wallets *services.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type WithdrawalRequestBody struct {
	Amount decimal.Decimal         `json:"amount"`
	Method models.WithdrawalMethod `json:"method" validate:"required,oneof=bank crypto"`
	Bank   *models.BankDetails     `json:"bank_details,omitempty"`
	Crypto *models.CryptoDetails   `json:"crypto_details,omitempty"`
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	balance, err := h.wallets.Balance(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	entries, err := h.wallets.Transactions(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"available":    balance,
		"transactions": entries,
	})
}

func (h *WalletHandler) RequestWithdrawal(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	var req WithdrawalRequestBody
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	wr, err := h.wallets.RequestWithdrawal(c.UserContext(), userID, services.WithdrawalInput{
		Amount: req.Amount,
		Method: req.Method,
		Bank:   req.Bank,
		Crypto: req.Crypto,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(wr)
}

func (h *WalletHandler) ListWithdrawals(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	requests, err := h.wallets.ListWithdrawals(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}
