package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/errors"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound  = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeBackendHTTP     = "BACKEND_HTTP_ERROR"
	ErrCodeBackendDown     = "BACKEND_UNREACHABLE"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"
	ErrCodeNotATerminal    = "NOT_A_TERMINAL"
	ErrCodeNotifyFailed    = "NOTIFY_FAILED"
	ErrCodeUnknown         = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	env := JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	if status, ok := api.StatusCodeOf(err); ok {
		return &JSONError{
			Code:       ErrCodeBackendHTTP,
			Message:    api.Summary(err),
			Suggestion: "Check the backend logs for the failing request",
			Details: map[string]interface{}{
				"status_code": status,
				"error":       err.Error(),
			},
		}
	}

	var btpErr *errors.Error
	if !stderrors.As(err, &btpErr) {
		return &JSONError{
			Code:    ErrCodeUnknown,
			Message: err.Error(),
		}
	}

	out := &JSONError{
		Code:       mapErrorCode(btpErr),
		Message:    btpErr.Message,
		Suggestion: btpErr.Suggestion,
	}
	if btpErr.Cause != nil {
		out.Details = map[string]interface{}{
			"cause": btpErr.Cause.Error(),
		}
	}
	return out
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(e *errors.Error) string {
	switch e.Code {
	case errors.ErrConfig:
		// Distinguish between not found and invalid
		msgLower := strings.ToLower(e.Message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrFetch:
		if errors.IsCode(e.Cause, errors.ErrDecode) {
			return ErrCodeInvalidResponse
		}
		return ErrCodeBackendDown
	case errors.ErrDecode:
		return ErrCodeInvalidResponse
	case errors.ErrMount:
		return ErrCodeNotATerminal
	case errors.ErrNotify:
		return ErrCodeNotifyFailed
	}

	return ErrCodeUnknown
}
