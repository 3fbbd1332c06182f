package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"keyward/internal/service"
	"keyward/internal/store"
)

type syncRequest struct {
	APIKey   string          `json:"apiKey"`
	Payload  string          `json:"payload"`
	JSONData json.RawMessage `json:"jsonData"`
}

// SyncHandler handles POST /api/v1/sync.
func SyncHandler(syncer *service.Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"HttpCode": "400",
				"Code":     "ERR_INVALID_JSON",
				"Message":  "The request body must be valid JSON.",
			})
			return
		}

		outcome := syncer.Sync(c.Request.Context(), req.APIKey, req.Payload, req.JSONData)
		renderOutcome(c, outcome)
	}
}

// ListSyncEntriesHandler handles GET /admin/sync
func ListSyncEntriesHandler(syncStore store.SyncStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := syncStore.ListSyncEntries()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync entries"})
			return
		}
		if entries == nil {
			entries = []store.SyncEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

// ListSyncFilesHandler handles GET /admin/sync/:productid/:licenseid
func ListSyncFilesHandler(syncStore store.SyncStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := syncStore.ListSyncFiles(c.Param("productid"), c.Param("licenseid"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No sync files for this license"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync files"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": files})
	}
}

// DownloadSyncFileHandler handles GET /admin/sync/:productid/:licenseid/:hardwareid/:filename
func DownloadSyncFileHandler(syncStore store.SyncStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("filename")
		if !strings.HasSuffix(name, ".json") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
			return
		}

		path, err := syncStore.OpenSyncFile(c.Param("productid"), c.Param("licenseid"), c.Param("hardwareid"), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Sync file not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open sync file"})
			return
		}

		c.FileAttachment(path, filepath.Base(path))
	}
}

// DeleteSyncFileHandler handles DELETE /admin/sync/:productid/:licenseid/:hardwareid/:filename
func DeleteSyncFileHandler(syncStore store.SyncStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := syncStore.DeleteSyncFile(c.Param("productid"), c.Param("licenseid"), c.Param("hardwareid"), c.Param("filename"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Sync file not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sync file"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Sync file deleted"})
	}
}
