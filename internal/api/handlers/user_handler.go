package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

type UserHandler struct {
	s service.AuthService
}

func NewUserHandler(service service.AuthService) *UserHandler {
	return &UserHandler{s: service}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	user, err := h.s.UserInfo(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(user)
}
