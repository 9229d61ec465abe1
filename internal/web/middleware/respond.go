package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody mirrors the error payload written by the web package so clients
// see one shape regardless of which layer rejected the request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
