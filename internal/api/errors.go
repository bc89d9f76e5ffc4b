package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/observeo/remedy-engine/internal/domain"
)

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// httpStatus maps engine error kinds onto HTTP status codes.
func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPrecondition:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates an engine error into a JSON error response.
func writeError(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	return c.JSON(httpStatus(kind), ErrorResponse{
		Kind:    string(kind),
		Message: err.Error(),
	})
}
