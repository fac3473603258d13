package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// TurnFailedMessage is what callers see when a turn could not complete.
	TurnFailedMessage = "turn failed, please retry"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// StoreErrorMessage describes checkpoint persistence failures.
	StoreErrorMessage = "checkpoint store operation failed"
	// ModelErrorMessage describes failures of the hosted model API.
	ModelErrorMessage = "model invocation failed"
	// ToolErrorMessage describes failures raised by a tool implementation.
	ToolErrorMessage = "tool execution failed"
)

var (
	// ErrMaxIterations is returned when the model keeps requesting tools past the
	// configured iteration bound for a single turn.
	ErrMaxIterations = errors.New("max tool iterations exceeded")
	// ErrInvalidMessage marks a message whose role or content violates the data model.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrThreadIDRequired is returned when a turn is started without a thread id.
	ErrThreadIDRequired = errors.New("thread id is required")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// WrapStore wraps a checkpoint store error. Redis errors that were already
// wrapped keep their own status.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) {
		return err
	}
	return New(err, http.StatusBadGateway, StoreErrorMessage)
}

// WrapModel wraps an error returned by the model API.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}

// WrapTool wraps an error returned by the named tool.
func WrapTool(name string, err error) error {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%s: %w", name, err), http.StatusBadGateway, ToolErrorMessage)
}

// TurnFailed converts any unrecovered pipeline error into the generic
// retryable signal handed back to callers. The cause stays reachable through
// errors.Is / errors.As.
func TurnFailed(err error) error {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrThreadIDRequired):
		status = http.StatusBadRequest
	case errors.Is(err, ErrMaxIterations):
		status = http.StatusUnprocessableEntity
	default:
		var app *AppError
		if errors.As(err, &app) {
			status = app.Status
		}
	}
	return New(err, status, TurnFailedMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when none is attached.
func StatusOf(err error) int {
	var app *AppError
	if errors.As(err, &app) {
		return app.Status
	}
	return http.StatusInternalServerError
}
