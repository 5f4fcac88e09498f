package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse provides error details
type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func (h *Handlers) meta(r *http.Request) ResponseMeta {
	return ResponseMeta{
		RequestID: requestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
}

func (h *Handlers) writeSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    h.meta(r),
	})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, resp *ErrorResponse) {
	writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    h.meta(r),
	})
}

// handleError maps application errors onto HTTP responses
func (h *Handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		h.writeError(w, r, appErr.StatusCode, &ErrorResponse{Code: appErr.Code, Message: appErr.Error()})
		return
	}
	h.logger.Error("unhandled error", zap.Error(err))
	h.writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
