package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/services"
	"github.com/messagely/apiserver/types"
)

// MessageHandler provides HTTP handlers for messages.
type MessageHandler struct {
	messages *services.MessageService
	logger   logging.Logger
}

func NewMessageHandler(messages *services.MessageService, logger logging.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// MessageRouter registers message routes. Every route requires authentication.
func MessageRouter(
	r chi.Router,
	messages *services.MessageService,
	logger logging.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewMessageHandler(messages, logger)

	r.Use(authMiddleware)
	r.Post("/", handler.SendMessage)
	r.Route("/{messageID}", func(r chi.Router) {
		r.Get("/", handler.GetMessage)
		r.Post("/read", handler.MarkRead)
	})
}

// GetMessage returns a message to its sender or recipient.
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := messageIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.messages.GetMessage(r.Context(), identity, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load message")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// SendMessage creates a message from the caller.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	message, err := h.messages.SendMessage(r.Context(), identity, strings.TrimSpace(req.ToUsername), req.Body)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: message})
}

// MarkRead marks a message read on behalf of its recipient.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := messageIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.messages.MarkMessageRead(r.Context(), identity, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to mark message read")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

type SendMessageRequest struct {
	ToUsername string `json:"to_username"`
	Body       string `json:"body"`
}

type MessageResponse struct {
	Message types.Message `json:"message"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
}
