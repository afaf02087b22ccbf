package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/evaluation"
	"github.com/ddq-agent/backend/pkg/logger"
)

type EvaluationHandler struct {
	evaluations *evaluation.Service
}

func NewEvaluationHandler(evaluations *evaluation.Service) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
	}
}

func (h *EvaluationHandler) Evaluate(c *fiber.Ctx) error {
	var req struct {
		QuestionID  string `json:"question_id"`
		HumanAnswer string `json:"human_answer"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.evaluations.Evaluate(req.QuestionID, req.HumanAnswer)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *EvaluationHandler) GetReport(c *fiber.Ctx) error {
	report, err := h.evaluations.Report(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}
