package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careportal/internal/transport/httpdto"
	portal_errors "careportal/pkg/errors"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}

// respondError maps the error taxonomy onto HTTP responses. Precondition
// and validation failures get specific codes the UI can act on; anything
// unclassified degrades to a generic temporarily-unavailable response.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, portal_errors.ErrValidation):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "VALIDATION_FAILED"))
	case errors.Is(err, portal_errors.ErrNotAssigned):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "NOT_ASSIGNED"))
	case errors.Is(err, portal_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, portal_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, portal_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "NOT_FOUND"))
	case errors.Is(err, portal_errors.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "ALREADY_EXISTS"))
	case errors.Is(err, portal_errors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "INVALID_TRANSITION"))
	case errors.Is(err, portal_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "CONFLICT"))
	case errors.Is(err, portal_errors.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("temporarily unavailable", "UNAVAILABLE"))
	default:
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("temporarily unavailable", "UNAVAILABLE"))
	}
}
