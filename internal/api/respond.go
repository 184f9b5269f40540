package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"restaurant-pos/internal/poserr"
)

// decodeJSON reads one JSON object and rejects unknown fields
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return poserr.Validation("body", "is required")
		}
		return poserr.Validation("body", "invalid JSON: %v", err)
	}
	if decoder.More() {
		return poserr.Validation("body", "must contain a single JSON object")
	}
	return nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// respondError renders err with the status its kind maps to. Unclassified
// errors are logged and hidden behind a generic message.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	requestID := requestIDFrom(r.Context())
	status := poserr.HTTPStatus(err)
	kind := poserr.KindOf(err)

	message := err.Error()
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error(action, "Request failed", requestID, err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		if kind == "" {
			message = "Internal server error"
		}
	default:
		h.logger.Debug(action, fmt.Sprintf("Request rejected: %v", err), requestID, map[string]interface{}{
			"kind":        kind,
			"status_code": status,
		})
	}

	h.writeErrorResponse(w, status, message, string(kind), poserr.FieldOf(err), requestID)
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, kind, field, requestID string) {
	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}
	if kind != "" {
		errorResponse["kind"] = kind
	}
	if field != "" {
		errorResponse["field"] = field
	}
	h.respondJSON(w, statusCode, errorResponse, requestID)
}
