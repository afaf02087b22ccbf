package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/answering"
	"github.com/ddq-agent/backend/internal/projects"
	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
)

type ProjectHandler struct {
	projects *projects.Service
	answers  *answering.Service
	tracker  *workers.Tracker
}

func NewProjectHandler(projectService *projects.Service, answerService *answering.Service, tracker *workers.Tracker) *ProjectHandler {
	return &ProjectHandler{
		projects: projectService,
		answers:  answerService,
		tracker:  tracker,
	}
}

func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	var req struct {
		Name                string   `json:"name"`
		QuestionnaireID     string   `json:"questionnaire_id"`
		DocumentScope       string   `json:"document_scope"`
		SelectedDocumentIDs []string `json:"selected_document_ids"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	project, job, err := h.projects.Create(projects.CreateRequest{
		Name:                req.Name,
		QuestionnaireID:     req.QuestionnaireID,
		DocumentScope:       models.DocumentScope(req.DocumentScope),
		SelectedDocumentIDs: req.SelectedDocumentIDs,
	})
	if err != nil {
		return fail(c, err)
	}

	asyncReq, err := h.tracker.Start("project_build", job)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"project":    project,
		"request_id": asyncReq.ID,
	})
}

func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	list, err := h.projects.List()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"projects": list,
		"count":    len(list),
	})
}

func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	project, err := h.projects.Get(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(project)
}

func (h *ProjectHandler) DeleteProject(c *fiber.Ctx) error {
	if err := h.projects.Delete(c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Project deleted",
	})
}

func (h *ProjectHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.projects.Status(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(status)
}

func (h *ProjectHandler) GetSections(c *fiber.Ctx) error {
	sections, err := h.projects.Sections(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"sections": sections,
	})
}

func (h *ProjectHandler) UpdateScope(c *fiber.Ctx) error {
	var req struct {
		DocumentScope       string   `json:"document_scope"`
		SelectedDocumentIDs []string `json:"selected_document_ids"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	project, err := h.projects.UpdateScope(c.Params("id"), models.DocumentScope(req.DocumentScope), req.SelectedDocumentIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(project)
}

// RetryProject re-runs the questionnaire build of an ERROR project.
func (h *ProjectHandler) RetryProject(c *fiber.Ctx) error {
	project, job, err := h.projects.Retry(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	asyncReq, err := h.tracker.Start("project_build", job)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"project":    project,
		"request_id": asyncReq.ID,
	})
}

// GenerateAll starts batch answer generation for every open question
// in the project.
func (h *ProjectHandler) GenerateAll(c *fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.projects.Get(id); err != nil {
		return fail(c, err)
	}

	asyncReq, err := h.tracker.Start("generate_answers", h.answers.GenerateProjectJob(id))
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"request_id": asyncReq.ID,
		"project_id": id,
	})
}
