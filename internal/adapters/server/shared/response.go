package shared

import (
	"encoding/json"
	"net/http"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty" example:"Operation completed successfully"`
	Success bool        `json:"success" example:"true"`
} // @name SuccessResponse

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error" example:"Invalid request"`
	Details string `json:"details,omitempty"`
	Success bool   `json:"success" example:"false"`
} // @name ErrorResponse

// ResponseWriter serializes handler results as JSON.
type ResponseWriter struct {
	logger *logger.Logger
}

// NewResponseWriter creates a response writer bound to the handler's
// logger.
func NewResponseWriter(logger *logger.Logger) *ResponseWriter {
	return &ResponseWriter{
		logger: logger,
	}
}

// WriteSuccess writes a 200 success envelope.
func (rw *ResponseWriter) WriteSuccess(w http.ResponseWriter, data interface{}, message ...string) {
	rw.WriteJSON(w, http.StatusOK, NewSuccessResponse(data, message...))
}

// WriteCreated writes a 201 success envelope.
func (rw *ResponseWriter) WriteCreated(w http.ResponseWriter, data interface{}, message ...string) {
	rw.WriteJSON(w, http.StatusCreated, NewSuccessResponse(data, message...))
}

// WriteError writes an error envelope with the given status.
func (rw *ResponseWriter) WriteError(w http.ResponseWriter, statusCode int, message string, details ...string) {
	response := &ErrorResponse{
		Success: false,
		Error:   message,
	}
	if len(details) > 0 {
		response.Details = details[0]
	}
	rw.WriteJSON(w, statusCode, response)
}

// WriteAppError maps an application error onto the wire using the
// status code it carries.
func (rw *ResponseWriter) WriteAppError(w http.ResponseWriter, err error) {
	appErr := errors.GetAppError(err)
	rw.WriteError(w, appErr.Code, appErr.Message, appErr.Details)
}

// WriteBadRequest writes a 400 error envelope.
func (rw *ResponseWriter) WriteBadRequest(w http.ResponseWriter, message string, details ...string) {
	rw.WriteError(w, http.StatusBadRequest, message, details...)
}

// WriteNotFound writes a 404 error envelope.
func (rw *ResponseWriter) WriteNotFound(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusNotFound, message)
}

// WriteServiceUnavailable writes a 503 error envelope.
func (rw *ResponseWriter) WriteServiceUnavailable(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusServiceUnavailable, message)
}

// WriteInternalError writes a 500 error envelope.
func (rw *ResponseWriter) WriteInternalError(w http.ResponseWriter, message string) {
	rw.WriteError(w, http.StatusInternalServerError, message)
}

// WriteJSON writes any payload with an explicit status.
func (rw *ResponseWriter) WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		rw.logger.ErrorWithFields("Failed to encode JSON response", map[string]interface{}{
			"error":       err.Error(),
			"status_code": statusCode,
		})
	}
}

// NewSuccessResponse builds the success envelope.
func NewSuccessResponse(data interface{}, message ...string) *SuccessResponse {
	response := &SuccessResponse{
		Success: true,
		Data:    data,
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	return response
}
