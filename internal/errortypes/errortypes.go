// Package errortypes provides error types and handling for toolhost.
package errortypes

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// ErrorType represents the type of error that occurred
type ErrorType string

// Error types
const (
	// ErrorTypeConfig is fatal at load time: unknown service, missing
	// handler map, missing or malformed schema document.
	ErrorTypeConfig ErrorType = "config"

	// ErrorTypeUnknownTool is recoverable at call time: the requested
	// tool name is absent from the catalog.
	ErrorTypeUnknownTool ErrorType = "unknown_tool"

	// ErrorTypeResolution is recoverable at call time: a handler ref
	// resolved under neither the qualified nor the fallback strategy.
	ErrorTypeResolution ErrorType = "handler_resolution"

	// ErrorTypeExecution is recoverable at call time: the resolved
	// handler returned an error or panicked.
	ErrorTypeExecution ErrorType = "handler_execution"

	// ErrorTypeReap is non-fatal at start time: a port holder could
	// not be signaled.
	ErrorTypeReap ErrorType = "port_reap"

	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents an application error with context
type AppError struct {
	Err       error
	Type      ErrorType
	Message   string
	StackInfo string
	Fields    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

// Unwrap unwraps the error to support errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField adds a field to the error for additional context
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the error for additional context
func (e *AppError) WithFields(fields map[string]interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// captureStack captures the stack trace at the call site
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		// Skip testing and standard library frames
		if !strings.Contains(frame.File, "testing/") && !strings.Contains(frame.File, "/go/src/") {
			fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

// newAppError creates a new AppError with the given type, underlying error, and message
func newAppError(errType ErrorType, err error, message string) *AppError {
	if err == nil {
		err = errors.New("unknown error")
	}

	return &AppError{
		Err:       err,
		Type:      errType,
		Message:   message,
		StackInfo: captureStack(),
		Fields:    make(map[string]interface{}),
	}
}

// ConfigError creates a new configuration error
func ConfigError(err error, message string) *AppError {
	return newAppError(ErrorTypeConfig, err, message)
}

// UnknownToolError creates a new unknown-tool error
func UnknownToolError(err error, message string) *AppError {
	return newAppError(ErrorTypeUnknownTool, err, message)
}

// ResolutionError creates a new handler-resolution error
func ResolutionError(err error, message string) *AppError {
	return newAppError(ErrorTypeResolution, err, message)
}

// ExecutionError creates a new handler-execution error
func ExecutionError(err error, message string) *AppError {
	return newAppError(ErrorTypeExecution, err, message)
}

// ReapError creates a new port-reap error
func ReapError(err error, message string) *AppError {
	return newAppError(ErrorTypeReap, err, message)
}

// NetworkError creates a new network error
func NetworkError(err error, message string) *AppError {
	return newAppError(ErrorTypeNetwork, err, message)
}

// InternalError creates a new internal error
func InternalError(err error, message string) *AppError {
	return newAppError(ErrorTypeInternal, err, message)
}

// Classify returns the ErrorType of err, or ErrorTypeExecution for
// errors that did not originate from this package. Call-time error
// payloads use this to preserve the original error kind.
func Classify(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeExecution
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeConfig
	}
	return false
}

// IsUnknownToolError checks if an error is an unknown-tool error
func IsUnknownToolError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeUnknownTool
	}
	return false
}

// IsResolutionError checks if an error is a handler-resolution error
func IsResolutionError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeResolution
	}
	return false
}

// LogError logs an AppError using the provided slog.Logger or the default slog logger.
// It logs the error message, type, stack trace, and any associated fields.
func LogError(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		args := []any{
			"type", string(appErr.Type),
			"original_error", appErr.Err.Error(),
		}
		if appErr.StackInfo != "" {
			args = append(args, "stack", appErr.StackInfo)
		}
		for k, v := range appErr.Fields {
			args = append(args, k, v)
		}
		logger.Error(appErr.Message, args...)
	} else {
		logger.Error(err.Error(), "error", err)
	}
}
