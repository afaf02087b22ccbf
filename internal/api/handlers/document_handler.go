package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/documents"
	"github.com/ddq-agent/backend/internal/ingestion"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
)

type DocumentHandler struct {
	docs      *documents.Service
	processor *ingestion.Processor
	tracker   *workers.Tracker
}

func NewDocumentHandler(docs *documents.Service, processor *ingestion.Processor, tracker *workers.Tracker) *DocumentHandler {
	return &DocumentHandler{
		docs:      docs,
		processor: processor,
		tracker:   tracker,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file upload is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	isQuestionnaire := c.FormValue("is_questionnaire") == "true"

	doc, err := h.docs.Upload(fileHeader.Filename, data, isQuestionnaire)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// RegisterDocument records a file already on the server's filesystem
// without copying it.
func (h *DocumentHandler) RegisterDocument(c *fiber.Ctx) error {
	var req struct {
		FilePath        string `json:"file_path"`
		IsQuestionnaire bool   `json:"is_questionnaire"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	doc, err := h.docs.Register(req.FilePath, req.IsQuestionnaire)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// IndexDocument starts an async indexing run and returns the request
// ID to poll.
func (h *DocumentHandler) IndexDocument(c *fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.docs.Get(id); err != nil {
		return fail(c, err)
	}

	req, err := h.tracker.Start("index_document", h.processor.Job(id))
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"request_id":  req.ID,
		"document_id": id,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	var isQuestionnaire *bool
	if v := c.Query("is_questionnaire"); v != "" {
		b := v == "true"
		isQuestionnaire = &b
	}

	docs, err := h.docs.List(isQuestionnaire)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.docs.Get(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(doc)
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	if err := h.docs.Delete(c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Document deleted",
	})
}
