package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
)

// TextClassifier classifies free text.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (*domain.Classification, error)
}

// ClassifyHandler serves POST /Classify.
type ClassifyHandler struct {
	classifier TextClassifier
}

func NewClassifyHandler(classifier TextClassifier) *ClassifyHandler {
	return &ClassifyHandler{classifier: classifier}
}

func (h *ClassifyHandler) Register(router fiber.Router) {
	router.Post("/Classify", h.Classify)
}

// Classify returns the top class of the posted text.
func (h *ClassifyHandler) Classify(c fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	result, err := h.classifier.Classify(c.Context(), body.Text)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}
