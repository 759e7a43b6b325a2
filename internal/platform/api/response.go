package api

import (
	"encoding/json"
	"net/http"
)

// ReasonInternal is the only reason ever reported for unexpected failures.
const ReasonInternal = "internal-server"

type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, reason, requestID string) {
	WriteJSON(w, status, ErrorResponse{OK: false, Reason: reason, RequestID: requestID})
}

// Unprocessable reports an expected, client-caused failure by its reason code.
func Unprocessable(w http.ResponseWriter, reason, requestID string) {
	WriteError(w, http.StatusUnprocessableEntity, reason, requestID)
}

func NotFound(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusNotFound, "", requestID)
}

// Internal hides the cause; callers log it before responding.
func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternal, requestID)
}
