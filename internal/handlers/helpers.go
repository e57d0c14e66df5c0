package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nahidhasan98/icon-sync/internal/errors"
	"github.com/nahidhasan98/icon-sync/internal/models"
)

// maxPayloadBytes is GitHub's cap on webhook payloads
const maxPayloadBytes = 25 << 20

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode JSON response", err)
	}
}

// writeAppError writes an application error response
func (h *Handler) writeAppError(w http.ResponseWriter, appErr *errors.AppError) {
	response := &models.ErrorResponse{
		Error:   appErr.Message,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	}

	// Log the error for internal monitoring
	h.log.With("error_code", appErr.Code).
		With("status_code", appErr.StatusCode).
		Error(appErr.Message, appErr.Err)

	h.writeJSON(w, response, appErr.StatusCode)
}

// readBody reads a request body up to maxPayloadBytes
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, *errors.AppError) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		return nil, errors.InvalidRequest("Failed to read request body: " + err.Error())
	}
	return body, nil
}

// decodePush parses and validates a push payload
func (h *Handler) decodePush(body []byte) (*models.PushEvent, *errors.AppError) {
	var payload models.PushEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.InvalidRequest("Invalid webhook payload: " + err.Error())
	}
	if appErr := h.validator.ValidatePushEvent(&payload); appErr != nil {
		return nil, appErr
	}
	return &payload, nil
}
