package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/admission"
	"github.com/smokestack-project/smokestack/pkg/services"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// errorResponse is the envelope for failed requests.
type errorResponse struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}

// okResponse is the envelope for successful requests.
type okResponse struct {
	OK     bool `json:"ok"`
	Result any  `json:"result"`
}

// respond writes the success envelope.
func respond(c *echo.Context, status int, result any) error {
	return c.JSON(status, okResponse{OK: true, Result: result})
}

// statusForKind maps denial kinds to HTTP status codes.
func statusForKind(kind admission.Kind) int {
	switch kind {
	case admission.KindNotFound:
		return http.StatusNotFound
	case admission.KindInvalidInput, admission.KindCycleDetected:
		return http.StatusBadRequest
	case admission.KindInvalidTransition, admission.KindScheduleConflict, admission.KindConflict:
		return http.StatusConflict
	case admission.KindDependencyPending, admission.KindDependencyUnsatisfiable:
		return http.StatusFailedDependency
	case admission.KindNeedsApproval, admission.KindUnauthorized:
		return http.StatusForbidden
	case admission.KindLockConflict:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// fail maps service and admission errors to the error envelope.
func fail(c *echo.Context, err error) error {
	var denial *admission.Denial
	if errors.As(err, &denial) {
		return c.JSON(statusForKind(denial.Kind), errorResponse{
			Error: ErrorBody{
				Kind:    string(denial.Kind),
				Message: denial.Message,
				Detail:  denial.Detail,
			},
		})
	}

	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: ErrorBody{Kind: string(admission.KindInvalidInput), Message: validErr.Error()},
		})
	}
	if errors.Is(err, services.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error: ErrorBody{Kind: string(admission.KindNotFound), Message: "resource not found"},
		})
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Error: ErrorBody{Kind: string(admission.KindInternal), Message: "internal server error"},
	})
}

// badRequest writes an invalid_input envelope directly from the handler.
func badRequest(c *echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error: ErrorBody{Kind: string(admission.KindInvalidInput), Message: message},
	})
}
