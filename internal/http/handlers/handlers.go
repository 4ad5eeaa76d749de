package handlers

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// failureResponse is the common {failed, message} error body
type failureResponse struct {
	Failed  bool   `json:"failed"`
	Message string `json:"message,omitempty"`
}

func respondFailure(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, failureResponse{Failed: true, Message: message})
}

// HandlePing handles GET /ping
func HandlePing(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("Pong!"))
}
