package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"keyward/internal/store"
)

func queryFilter(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}

// ListChangelogsHandler handles GET /admin/logs/changelog with optional
// license_id, actor and action query filters.
func ListChangelogsHandler(logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := store.ChangelogFilter{
			LicenseID: queryFilter(c, "license_id"),
			Actor:     queryFilter(c, "actor"),
			Action:    queryFilter(c, "action"),
		}

		pagination := ParsePaginationParams(c)
		entries, totalCount, err := logStore.ListChangelogs(c.Request.Context(), filter, pagination)
		if err != nil {
			slog.Error("Failed to list changelogs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list changelogs"})
			return
		}

		c.JSON(http.StatusOK, paginated(entries, totalCount, pagination))
	}
}

// ListValidationLogsHandler handles GET /admin/logs/validation with
// optional result, code, serial_key and api_key query filters.
func ListValidationLogsHandler(logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := store.ValidationLogFilter{
			Result:    queryFilter(c, "result"),
			Code:      queryFilter(c, "code"),
			SerialKey: queryFilter(c, "serial_key"),
			APIKey:    queryFilter(c, "api_key"),
		}

		pagination := ParsePaginationParams(c)
		entries, totalCount, err := logStore.ListValidationLogs(c.Request.Context(), filter, pagination)
		if err != nil {
			slog.Error("Failed to list validation logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list validation logs"})
			return
		}

		c.JSON(http.StatusOK, paginated(entries, totalCount, pagination))
	}
}
