// Package handler implements the orai HTTP endpoints.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// statusFor maps the error taxonomy onto HTTP. Provider failures are checked
// before not-found so a provider 404 reads as an upstream failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, types.ErrProvider):
		return http.StatusBadGateway, "Mail provider request failed"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, msg := statusFor(err)
	if status == http.StatusBadRequest {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}
