package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"payscope/pkg/errs"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// RespondError writes an error response, mapping the error kind to a status
// code and flagging transient failures as retryable.
func RespondError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	response := ErrorResponse{
		Error:     http.StatusText(status),
		Kind:      string(errs.KindOf(err)),
		Message:   err.Error(),
		Retryable: errs.Retryable(err),
	}
	if response.Retryable {
		w.Header().Set("Retry-After", "5")
	}
	RespondJSON(w, status, response)
}

// RespondErrorString writes an error response with an explicit status code.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	RespondJSON(w, status, response)
}
