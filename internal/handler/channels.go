package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/middleware"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// ChannelHandler handles channel connect flows for the dashboard.
type ChannelHandler struct {
	service *service.ChannelService
	errors  errorWriter
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(svc *service.ChannelService, redact bool, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		service: svc,
		errors:  errorWriter{redact: redact, logger: log.Named("channels")},
	}
}

// Connect handles POST /api/v1/agents/{agentID}/channels
func (h *ChannelHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	if err := middleware.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ConnectChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.write(w, err)
		return
	}

	resp, err := h.service.Connect(ctx, middleware.GetTenantID(ctx), agentID, &req)
	if err != nil {
		h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/agents/{agentID}/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	if err := middleware.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.List(ctx, middleware.GetTenantID(ctx), agentID)
	if err != nil {
		h.errors.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/agents/{agentID}/channels/{id}
func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	channelID := chi.URLParam(r, "id")

	if err := middleware.ValidateChannelID(channelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Disconnect(ctx, middleware.GetTenantID(ctx), agentID, channelID); err != nil {
		h.errors.write(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
