package ops

import (
	"encoding/json"
	"net/http"

	"github.com/coachverse/recall/pkg/ops/middleware"
)

// ErrorResponse is the body of every non-2xx ops response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
