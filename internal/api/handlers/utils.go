package handlers

import (
	"net"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"keyward/internal/api/middleware"
	"keyward/internal/models"
	"keyward/internal/service"
)

// apiResponse is the device-facing response envelope. HttpCode is a string
// for compatibility with the deployed client parsers.
type apiResponse struct {
	HttpCode       string  `json:"HttpCode"`
	Code           string  `json:"Code"`
	Message        string  `json:"Message"`
	SerialKey      *string `json:"SerialKey"`
	HardwareID     *string `json:"HardwareID"`
	ExpirationDate int64   `json:"ExpirationDate"`
}

func renderOutcome(c *gin.Context, outcome service.Outcome) {
	c.JSON(outcome.HTTPStatus, apiResponse{
		HttpCode:       strconv.Itoa(outcome.HTTPStatus),
		Code:           outcome.Code,
		Message:        outcome.Message,
		SerialKey:      outcome.SerialKey,
		HardwareID:     outcome.HardwareID,
		ExpirationDate: outcome.ExpirationDate,
	})
}

// SourceIP returns the right-most entry of the forwarded-for chain, the
// nearest proxy hop. Spoofable, so informational only; it is recorded in
// the audit log, never used for decisions.
func SourceIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}
	return c.Request.RemoteAddr
}

// Actor returns the authenticated operator identity placed in the context
// by the JWT middleware.
func Actor(c *gin.Context) string {
	return c.GetString(middleware.ActorKey)
}

// ParsePaginationParams extracts page and limit from query parameters
func ParsePaginationParams(c *gin.Context) models.PaginationParams {
	pageStr := c.DefaultQuery("page", "1")
	limitStr := c.DefaultQuery("limit", "10")

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = 10
	}

	// Enforce a sensible max limit to prevent abuse
	if limit > 1000 {
		limit = 1000
	}

	return models.PaginationParams{
		Page:  page,
		Limit: limit,
	}
}

func paginated[T any](items []T, totalCount int, p models.PaginationParams) models.PaginatedList[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (totalCount + p.Limit - 1) / p.Limit
	}
	return models.PaginatedList[T]{
		Items:      items,
		TotalCount: totalCount,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
	}
}
