package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"keyward/internal/service"
)

type validateRequest struct {
	APIKey  string `json:"apiKey"`
	Payload string `json:"payload"`
}

// ValidateHandler handles POST /api/v1/validate and its aliases.
func ValidateHandler(validator *service.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"HttpCode": "400",
				"Code":     "ERR_INVALID_JSON",
				"Message":  "The request body must be valid JSON.",
			})
			return
		}

		outcome := validator.Validate(c.Request.Context(), req.APIKey, req.Payload, SourceIP(c))
		renderOutcome(c, outcome)
	}
}
