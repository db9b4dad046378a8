package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/biosecret/go-tasks/models"
)

// RegisterHandler godoc
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "Account details"
// @Success      201   {object}  models.AuthResponse
// @Failure      400   {object}  models.ErrorResponse  "Missing fields or e-mail already registered"
// @Router       /api/auth/register [post]
func (h *Handlers) RegisterHandler(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// LoginHandler godoc
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Credentials"
// @Success      200   {object}  models.AuthResponse
// @Failure      400   {object}  models.ErrorResponse  "Invalid credentials"
// @Router       /api/auth/login [post]
func (h *Handlers) LoginHandler(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
