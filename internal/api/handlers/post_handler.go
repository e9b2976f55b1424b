package handlers

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var in transfer.PostCreation
	if err := c.BodyParser(&in); err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to parse form")
	}
	if err := transfer.Validate(&in); err != nil {
		return errorResponse(c, err)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "Image file is required")
	}
	f, err := file.Open()
	if err != nil {
		return errorResponse(c, err)
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		return errorResponse(c, err)
	}

	post, err := h.s.CreatePost(c.UserContext(), &in, image)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.PostInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	var in transfer.PostUpdate
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := transfer.Validate(&in); err != nil {
		return errorResponse(c, err)
	}

	post, err := h.s.Update(c.UserContext(), c.Params("id"), &in)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	post, err := h.s.Remove(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) History(c *fiber.Ctx) error {
	rows, err := h.s.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(rows)
}

func (h *PostHandler) GenerateCaption(c *fiber.Ctx) error {
	imageURL := c.Query("imageUrl")
	if imageURL == "" {
		return badRequest(c, "imageUrl is required")
	}

	caption := h.s.GenerateCaption(c.UserContext(), imageURL, c.Query("promptId"))
	return c.Status(fiber.StatusOK).JSON(transfer.CaptionResponse{Caption: caption})
}
