package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
	Field string      `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps a service failure to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: apperr.KindOf(err)}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp.Field = appErr.Field
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.EmbeddingUnavailable, apperr.IndexUnavailable:
		return http.StatusBadGateway
	case apperr.ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
