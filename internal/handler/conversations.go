// Package handler provides HTTP handlers for the webhook server.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/middleware"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// ConversationHandler serves the agent inbox.
type ConversationHandler struct {
	service *service.ConversationService
	errors  errorWriter
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, redact bool, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		errors:  errorWriter{redact: redact, logger: log.Named("inbox")},
	}
}

// List handles GET /api/v1/agents/{agentID}/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	if err := middleware.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	status := model.ConversationStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	resp, err := h.service.List(ctx, middleware.GetTenantID(ctx), agentID, status, limit)
	if err != nil {
		h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(ctx, middleware.GetTenantID(ctx), conversationID)
	if err != nil {
		h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// UpdateStatus handles PUT /api/v1/conversations/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, err)
		return
	}

	conv, err := h.service.UpdateStatus(ctx, middleware.GetTenantID(ctx), conversationID, req.Status)
	if err != nil {
		h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
