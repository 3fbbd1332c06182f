package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyward/internal/models"
	"keyward/internal/service"
	"keyward/internal/store"
)

// endOfDayOffset shifts a date-picker midnight timestamp to 23:59:59 of
// the same day. Applied only to the fixed-date model; day counts are exact
// durations and need no adjustment.
const endOfDayOffset = 86399

const maxBulkCreate = 100

type createLicensesRequest struct {
	CustomerID string            `json:"customer_id" binding:"required"`
	MaxDevices int               `json:"max_devices" binding:"required"`
	ExpiryType models.ExpiryType `json:"expiry_type"`
	ExpiryDate int64             `json:"expiry_date"`
	ExpiryDays int64             `json:"expiry_days"`
	Quantity   int               `json:"quantity"`
}

type licenseStateRequest struct {
	Action string `json:"action" binding:"required"`
}

type bulkActionRequest struct {
	LicenseIDs []string `json:"license_ids" binding:"required"`
	Action     string   `json:"action" binding:"required"`
}

// CreateLicensesHandler handles POST /admin/products/:id/licenses. A
// quantity above one creates that many licenses with identical parameters
// and distinct serial keys.
func CreateLicensesHandler(licenseStore store.LicenseStore, productStore store.ProductStore, customerStore store.CustomerStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createLicensesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		product, err := productStore.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id or product not found"})
			return
		}

		customer, err := customerStore.GetCustomer(c.Request.Context(), req.CustomerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer id or customer not found"})
			return
		}

		if req.MaxDevices < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_devices must be at least 1"})
			return
		}

		quantity := req.Quantity
		if quantity < 1 {
			quantity = 1
		}
		if quantity > maxBulkCreate {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d licenses can be created at once", maxBulkCreate)})
			return
		}

		expiryDate := req.ExpiryDate
		expiryDays := req.ExpiryDays
		switch req.ExpiryType {
		case models.ExpiryDaysFromActivation:
			if expiryDays < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "expiry_days must be at least 1"})
				return
			}
			expiryDate = 0
		case models.ExpiryFixedDate:
			expiryDays = 0
			if expiryDate != 0 {
				expiryDate += endOfDayOffset
				if expiryDate <= time.Now().Unix() {
					c.JSON(http.StatusBadRequest, gin.H{"error": "expiry_date must be in the future"})
					return
				}
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown expiry_type"})
			return
		}

		actor := Actor(c)
		created := make([]models.License, 0, quantity)
		for i := 0; i < quantity; i++ {
			serial, err := service.GenerateSerialKey()
			if err != nil {
				slog.Error("Failed to generate serial key", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate serial key", "created": len(created)})
				return
			}

			license := &models.License{
				ID:         uuid.New(),
				ProductID:  product.ID,
				CustomerID: customer.ID,
				SerialKey:  serial,
				Status:     models.StatusInactive,
				Devices:    0,
				MaxDevices: req.MaxDevices,
				ExpiryType: req.ExpiryType,
				ExpiryDate: expiryDate,
				ExpiryDays: expiryDays,
				CreatedAt:  time.Now(),
				UpdatedAt:  time.Now(),
			}

			if err := licenseStore.CreateLicense(c.Request.Context(), license); err != nil {
				slog.Error("Failed to create license", "error", err, "product_id", product.ID)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save license", "created": len(created)})
				return
			}
			created = append(created, *license)

			licenseID := license.ID
			service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
				LicenseID: &licenseID,
				Actor:     actor,
				Action:    "CreatedKey",
				Message:   fmt.Sprintf("%s created license %s for product %s", actor, license.ID, product.ID),
			})
		}

		slog.Info("Licenses created", "count", len(created), "product_id", product.ID, "actor", actor)
		c.JSON(http.StatusCreated, gin.H{"licenses": created})
	}
}

// GetLicenseHandler handles GET /admin/licenses/:id. The read path runs
// the same expiration check as the validation path; a license found
// expired here is marked Expired before it is returned.
func GetLicenseHandler(licenseStore store.LicenseStore, registrationStore store.RegistrationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		license, err := licenseStore.GetLicense(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
				return
			}
			slog.Error("Failed to get license", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get license"})
			return
		}

		if license.Status != models.StatusExpired && license.Status != models.StatusRevoked &&
			!service.LicenseValid(license, time.Now().Unix()) {
			if err := licenseStore.SetStatus(c.Request.Context(), license.ID.String(), models.StatusExpired); err != nil {
				slog.Error("Failed to mark license expired", "error", err, "license_id", license.ID)
			} else {
				license.Status = models.StatusExpired
			}
		}

		devices, err := registrationStore.ListRegistrations(c.Request.Context(), license.ID.String())
		if err != nil {
			slog.Error("Failed to list registrations", "error", err, "license_id", license.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list devices"})
			return
		}
		if devices == nil {
			devices = []models.Registration{}
		}

		c.JSON(http.StatusOK, gin.H{"license": license, "devices": devices})
	}
}

// ListLicensesHandler handles GET /admin/products/:id/licenses
func ListLicensesHandler(licenseStore store.LicenseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		pagination := ParsePaginationParams(c)
		licenses, totalCount, err := licenseStore.ListLicensesByProduct(c.Request.Context(), c.Param("id"), pagination)
		if err != nil {
			slog.Error("Failed to list licenses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list licenses"})
			return
		}

		c.JSON(http.StatusOK, paginated(licenses, totalCount, pagination))
	}
}

// ChangeLicenseStateHandler handles POST /admin/licenses/:id/state with
// actions SWITCHSTATE, RESET, and DELETE.
func ChangeLicenseStateHandler(licenseStore store.LicenseStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licenseStateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		license, err := licenseStore.GetLicense(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
				return
			}
			slog.Error("Failed to get license", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get license"})
			return
		}

		actor := Actor(c)
		action, message, err := applyLicenseStateAction(c, licenseStore, license, req.Action, actor)
		if err != nil {
			if errors.Is(err, errUnknownAction) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
				return
			}
			slog.Error("Failed to change license state", "error", err, "license_id", license.ID, "action", req.Action)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change license state"})
			return
		}

		entry := &models.Changelog{Actor: actor, Action: action, Message: message}
		if action != "DeletedKey" {
			licenseID := license.ID
			entry.LicenseID = &licenseID
		}
		service.AsyncLogChangelog(c.Request.Context(), logStore, entry)

		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

var errUnknownAction = errors.New("unknown action")

func applyLicenseStateAction(c *gin.Context, licenseStore store.LicenseStore, license *models.License, action, actor string) (string, string, error) {
	ctx := c.Request.Context()

	switch action {
	case "SWITCHSTATE":
		if license.Status != models.StatusRevoked {
			if err := licenseStore.SetStatus(ctx, license.ID.String(), models.StatusRevoked); err != nil {
				return "", "", err
			}
			return "RevokedKey", fmt.Sprintf("%s revoked license %s", actor, license.ID), nil
		}
		restored := models.StatusInactive
		if license.Devices > 0 {
			restored = models.StatusActive
		}
		if err := licenseStore.SetStatus(ctx, license.ID.String(), restored); err != nil {
			return "", "", err
		}
		return "ReactivatedKey", fmt.Sprintf("%s reactivated license %s", actor, license.ID), nil

	case "RESET":
		if err := licenseStore.ResetLicense(ctx, license.ID.String()); err != nil {
			return "", "", err
		}
		return "ResetKey", fmt.Sprintf("%s reset license %s", actor, license.ID), nil

	case "DELETE":
		if err := licenseStore.DeleteLicense(ctx, license.ID.String()); err != nil {
			return "", "", err
		}
		return "DeletedKey", fmt.Sprintf("%s deleted the pre-existing license %s", actor, license.ID), nil
	}

	return "", "", errUnknownAction
}

// BulkLicenseActionHandler handles POST /admin/licenses/bulk. Items are
// processed independently: one failure never aborts the batch, the
// response tallies per-item successes and errors.
func BulkLicenseActionHandler(licenseStore store.LicenseStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.LicenseIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No licenses selected"})
			return
		}

		actor := Actor(c)
		ctx := c.Request.Context()
		successCount := 0
		errorCount := 0

		for _, id := range req.LicenseIDs {
			license, err := licenseStore.GetLicense(ctx, id)
			if err != nil {
				errorCount++
				continue
			}

			var action, message string
			switch req.Action {
			case "REVOKE":
				if license.Status == models.StatusRevoked || license.Status == models.StatusExpired {
					errorCount++
					continue
				}
				err = licenseStore.SetStatus(ctx, id, models.StatusRevoked)
				action, message = "RevokedKey", fmt.Sprintf("%s revoked license %s (bulk action)", actor, id)
			case "REACTIVATE":
				if license.Status != models.StatusRevoked {
					errorCount++
					continue
				}
				restored := models.StatusInactive
				if license.Devices > 0 {
					restored = models.StatusActive
				}
				err = licenseStore.SetStatus(ctx, id, restored)
				action, message = "ReactivatedKey", fmt.Sprintf("%s reactivated license %s (bulk action)", actor, id)
			case "RESET":
				err = licenseStore.ResetLicense(ctx, id)
				action, message = "ResetKey", fmt.Sprintf("%s reset license %s (bulk action)", actor, id)
			case "DELETE":
				err = licenseStore.DeleteLicense(ctx, id)
				action, message = "DeletedKey", fmt.Sprintf("%s deleted license %s (bulk action)", actor, id)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
				return
			}

			if err != nil {
				errorCount++
				continue
			}
			successCount++

			entry := &models.Changelog{Actor: actor, Action: action, Message: message}
			if action != "DeletedKey" {
				licenseID := license.ID
				entry.LicenseID = &licenseID
			}
			service.AsyncLogChangelog(ctx, logStore, entry)
		}

		c.JSON(http.StatusOK, gin.H{
			"success": successCount,
			"errors":  errorCount,
			"message": fmt.Sprintf("%d license(s) processed successfully, %d error(s)", successCount, errorCount),
		})
	}
}

// DeleteExpiredLicensesHandler handles POST /admin/products/:id/licenses/purge-expired
func DeleteExpiredLicensesHandler(licenseStore store.LicenseStore, productStore store.ProductStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := productStore.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id or product not found"})
			return
		}

		deleted, err := licenseStore.DeleteExpiredLicenses(c.Request.Context(), product.ID.String())
		if err != nil {
			slog.Error("Failed to delete expired licenses", "error", err, "product_id", product.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete expired licenses"})
			return
		}

		actor := Actor(c)
		service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
			Actor:   actor,
			Action:  "DeletedKey",
			Message: fmt.Sprintf("%s deleted %d expired license(s) of product %s", actor, deleted, product.ID),
		})

		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "message": fmt.Sprintf("%d expired license(s) deleted", deleted)})
	}
}

// UnlinkDeviceHandler handles DELETE /admin/licenses/:id/devices/:hardwareid.
// Removing a registration frees its seat on the license.
func UnlinkDeviceHandler(registrationStore store.RegistrationStore, licenseStore store.LicenseStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		license, err := licenseStore.GetLicense(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
				return
			}
			slog.Error("Failed to get license", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get license"})
			return
		}

		hardwareID := c.Param("hardwareid")
		if err := registrationStore.DeleteRegistration(c.Request.Context(), license.ID.String(), hardwareID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not registered for this license"})
				return
			}
			slog.Error("Failed to unlink device", "error", err, "license_id", license.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unlink device"})
			return
		}

		actor := Actor(c)
		licenseID := license.ID
		service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
			LicenseID: &licenseID,
			Actor:     actor,
			Action:    "UnlinkedHWID",
			Message:   fmt.Sprintf("%s removed hardware %s from license %s", actor, hardwareID, license.ID),
		})

		c.JSON(http.StatusOK, gin.H{"message": "Device unlinked"})
	}
}
