package handlers

import (
	"github.com/anjiri1684/crypto_academy/middleware"
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	accounts *services.AccountService
	registry *services.Registry
}

func NewAuthHandler(accounts *services.AccountService, registry *services.Registry) *AuthHandler {
	return &AuthHandler{accounts: accounts, registry: registry}
}

type RegisterRequest struct {
	FullName       string `json:"full_name" validate:"required,min=2"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6"`
	ReferredByCode string `json:"referred_by_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	reg, err := h.accounts.Register(c.UserContext(), services.RegisterInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Password:       req.Password,
		ReferredByCode: req.ReferredByCode,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reg)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	token, err := h.accounts.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID in token"})
	}

	user, err := h.accounts.User(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	code, err := h.registry.CodeFor(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(services.Registration{User: user, ReferralCode: code})
}
