package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ddq-agent/backend/internal/workers"
)

type RequestHandler struct {
	tracker *workers.Tracker
}

func NewRequestHandler(tracker *workers.Tracker) *RequestHandler {
	return &RequestHandler{
		tracker: tracker,
	}
}

func (h *RequestHandler) GetRequest(c *fiber.Ctx) error {
	req, err := h.tracker.Get(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(req)
}
