package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/storage/models"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/logger"
)

// WebSocketHandler streams async request progress. A client subscribes
// with a request ID and receives a snapshot on every update until the
// request reaches a terminal state.
type WebSocketHandler struct {
	tracker *workers.Tracker
}

func NewWebSocketHandler(tracker *workers.Tracker) *WebSocketHandler {
	return &WebSocketHandler{
		tracker: tracker,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			RequestID string `json:"request_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "subscribe" || msg.RequestID == "" {
			h.sendError(c, "Expected a subscribe message with a request_id")
			continue
		}

		if err := h.streamProgress(c, msg.RequestID); err != nil {
			logger.Error("Failed to stream progress", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamProgress(c *websocket.Conn, requestID string) error {
	req, err := h.tracker.Get(requestID)
	if err != nil {
		h.sendError(c, "Unknown request ID")
		return nil
	}

	updates, cancel := h.tracker.Subscribe(requestID)
	defer cancel()

	// Send the current snapshot first: the request may already be done.
	if err := h.sendProgress(c, req); err != nil {
		return err
	}
	if req.Terminal() {
		return nil
	}

	for update := range updates {
		snapshot := update
		if err := h.sendProgress(c, &snapshot); err != nil {
			return err
		}
		if snapshot.Terminal() {
			return nil
		}
	}

	return nil
}

func (h *WebSocketHandler) sendProgress(c *websocket.Conn, req *models.AsyncRequest) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    "progress",
		"request": req,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
