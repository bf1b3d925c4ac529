package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// ErrorBody is the JSON error shape returned by every HTTP surface.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorBody. A *domain.APIError keeps its status
// code and reports its message as details; any other error becomes a 500.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	body := ErrorBody{Error: message}
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode()
		body.Details = apiErr.Message
	case err != nil:
		body.Details = err.Error()
	}
	WriteJSON(w, status, body)
}
