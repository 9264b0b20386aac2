package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rendis/botforge/pkg/schema"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var bfErr *schema.BotforgeError
	if !errors.As(err, &bfErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch bfErr.Code {
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeMalformedDocument, schema.ErrCodeValidation, schema.ErrCodeExpression:
		status = http.StatusBadRequest
	case schema.ErrCodeUnknownOption:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeConcurrentRequest:
		status = http.StatusConflict
	case schema.ErrCodeCollaborator:
		status = http.StatusBadGateway
	case schema.ErrCodeStaleGeneration:
		status = http.StatusAccepted
	}

	body := map[string]any{
		"code":  bfErr.Code,
		"error": bfErr.Message,
	}
	if bfErr.NodeID != "" {
		body["node_id"] = bfErr.NodeID
	}
	if len(bfErr.Details) > 0 {
		body["details"] = bfErr.Details
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return schema.NewError(schema.ErrCodeMalformedDocument, "invalid request body").WithCause(err)
	}
	return nil
}
