package shared

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

// BaseHandler carries the pieces every HTTP handler needs: the logger,
// the response writer and the shared validator with the phone and
// groupid rules registered.
type BaseHandler struct {
	logger   *logger.Logger
	writer   *ResponseWriter
	validate *validator.Validate
}

// NewBaseHandler builds the shared handler base.
func NewBaseHandler(log *logger.Logger, validate *validator.Validate) *BaseHandler {
	return &BaseHandler{
		logger:   log,
		writer:   NewResponseWriter(log),
		validate: validate,
	}
}

// GetLogger returns the handler logger.
func (h *BaseHandler) GetLogger() *logger.Logger {
	return h.logger
}

// GetWriter returns the response writer.
func (h *BaseHandler) GetWriter() *ResponseWriter {
	return h.writer
}

// ParseJSONBody decodes the request body into dest and rejects unknown
// fields.
func (h *BaseHandler) ParseJSONBody(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	return nil
}

// ValidateStruct runs the shared validator and flattens field errors
// into a single readable message.
func (h *BaseHandler) ValidateStruct(dest interface{}) error {
	err := h.validate.Struct(dest)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		msg := ""
		for i, fe := range fieldErrs {
			if i > 0 {
				msg += "; "
			}
			msg += fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%s", msg)
	}
	return err
}

// GetQueryString reads a query parameter with an optional default.
func (h *BaseHandler) GetQueryString(r *http.Request, name string, defaultValue ...string) string {
	value := r.URL.Query().Get(name)
	if value == "" && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// GetQueryInt reads an integer query parameter with an optional
// default.
func (h *BaseHandler) GetQueryInt(r *http.Request, name string, defaultValue ...int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return value, nil
}

// GetPaginationParams reads limit and offset, clamped to sane bounds.
func (h *BaseHandler) GetPaginationParams(r *http.Request) (limit, offset int, err error) {
	limit, err = h.GetQueryInt(r, "limit", 20)
	if err != nil {
		return 0, 0, err
	}
	offset, err = h.GetQueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}

	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, nil
}

// HandleError logs the failure and answers with the status the error
// carries, or 500 for unknown error types.
func (h *BaseHandler) HandleError(w http.ResponseWriter, err error, operation string) {
	appErr := errors.GetAppError(err)
	if appErr.Code >= http.StatusInternalServerError {
		h.logger.ErrorWithFields(fmt.Sprintf("Failed to %s", operation), map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		h.logger.WarnWithFields(fmt.Sprintf("Rejected %s", operation), map[string]interface{}{
			"error": err.Error(),
		})
	}
	h.writer.WriteError(w, appErr.Code, appErr.Message, appErr.Details)
}

// LogSuccess records a completed mutation.
func (h *BaseHandler) LogSuccess(operation string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["operation"] = operation
	h.logger.InfoWithFields(fmt.Sprintf("%s completed", operation), details)
}
