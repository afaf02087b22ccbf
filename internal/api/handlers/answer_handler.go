package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/answering"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/pkg/logger"
)

type AnswerHandler struct {
	answers *answering.Service
}

func NewAnswerHandler(answers *answering.Service) *AnswerHandler {
	return &AnswerHandler{
		answers: answers,
	}
}

// GenerateAnswer runs synchronous generation for one question.
func (h *AnswerHandler) GenerateAnswer(c *fiber.Ctx) error {
	answer, err := h.answers.GenerateAnswer(c.Context(), c.Params("questionID"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(answer)
}

func (h *AnswerHandler) GetAnswer(c *fiber.Ctx) error {
	answer, err := h.answers.GetByQuestion(c.Params("questionID"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(answer)
}

func (h *AnswerHandler) ListProjectAnswers(c *fiber.Ctx) error {
	answers, err := h.answers.ListByProject(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"answers": answers,
		"count":   len(answers),
	})
}

func (h *AnswerHandler) ReviewAnswer(c *fiber.Ctx) error {
	var req struct {
		Status       string  `json:"status"`
		ManualAnswer *string `json:"manual_answer"`
		ReviewNotes  string  `json:"review_notes"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	answer, err := h.answers.Review(c.Params("id"), answering.ReviewRequest{
		Status:       models.AnswerStatus(req.Status),
		ManualAnswer: req.ManualAnswer,
		ReviewNotes:  req.ReviewNotes,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(answer)
}
