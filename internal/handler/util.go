package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

// maxBodyBytes bounds request bodies; message content itself is capped lower.
const maxBodyBytes = 1 << 20

// Error outcomes, also used as metric labels.
const (
	outcomeOK           = "ok"
	outcomeIgnored      = "ignored"
	outcomeBadRequest   = "bad_request"
	outcomeUnauthorized = "unauthorized"
	outcomeNotFound     = "not_found"
	outcomeUpstream     = "upstream_error"
	outcomeError        = "error"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return &model.ValidationError{Field: "body", Reason: "must be a valid JSON object"}
	}
	return nil
}

// errorWriter maps service errors onto HTTP responses.
type errorWriter struct {
	redact bool
	logger *logger.Logger
}

// write sends the response for err and returns the outcome label.
func (e errorWriter) write(w http.ResponseWriter, err error) string {
	var (
		validation *model.ValidationError
		upstream   *service.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
		return outcomeBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Invalid secret")
		return outcomeUnauthorized
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return outcomeNotFound
	case errors.As(err, &upstream):
		e.logger.Warn("upstream call failed", zap.String("service", upstream.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, e.message(err))
		return outcomeUpstream
	default:
		e.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, e.message(err))
		return outcomeError
	}
}

func (e errorWriter) message(err error) string {
	if e.redact {
		return "internal error"
	}
	return err.Error()
}
