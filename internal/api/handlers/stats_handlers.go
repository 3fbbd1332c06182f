package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"keyward/internal/store"
)

// DashboardStatsHandler handles GET /admin/stats
func DashboardStatsHandler(statsStore store.StatsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := statsStore.GetDashboardStats(c.Request.Context())
		if err != nil {
			slog.Error("Failed to get dashboard stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get dashboard stats"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}
