package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"clanforge/backend/internal/apperr"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
}

// MessageResponse acknowledges an operation that returns no resource.
type MessageResponse struct {
	Message string `json:"message" example:"Request sent successfully"`
}

// respondError writes err with the status of its kind.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
}

func lobbyID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.NotFound("Lobby not found"))
		return 0, false
	}
	return uint(id), true
}
