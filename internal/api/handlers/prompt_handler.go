package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PromptHandler struct {
	s service.PromptService
}

func NewPromptHandler(service service.PromptService) *PromptHandler {
	return &PromptHandler{s: service}
}

func (h *PromptHandler) Create(c *fiber.Ctx) error {
	var in transfer.PromptInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := transfer.Validate(&in); err != nil {
		return errorResponse(c, err)
	}

	prompt, err := h.s.Create(c.UserContext(), in.Text)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(prompt)
}

func (h *PromptHandler) List(c *fiber.Ctx) error {
	prompts, err := h.s.List(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(prompts)
}

func (h *PromptHandler) Get(c *fiber.Ctx) error {
	prompt, err := h.s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(prompt)
}

func (h *PromptHandler) Update(c *fiber.Ctx) error {
	var in transfer.PromptInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := transfer.Validate(&in); err != nil {
		return errorResponse(c, err)
	}

	prompt, err := h.s.Update(c.UserContext(), c.Params("id"), in.Text)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(prompt)
}

func (h *PromptHandler) Remove(c *fiber.Ctx) error {
	prompt, err := h.s.Remove(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(prompt)
}
