package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyward/internal/models"
	"keyward/internal/store"
)

var (
	emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+$`)
	phonePattern = regexp.MustCompile(`^\d{11}$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z ]*$`)
)

type customerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
	Phone string `json:"phone"`
}

func (r *customerRequest) validate() string {
	if !namePattern.MatchString(r.Name) {
		return "Name must contain letters and spaces only"
	}
	if !emailPattern.MatchString(r.Email) {
		return "Invalid email address"
	}
	if r.Phone != "" && !phonePattern.MatchString(r.Phone) {
		return "Phone number must be exactly 11 digits"
	}
	return ""
}

// CreateCustomerHandler handles POST /admin/customers
func CreateCustomerHandler(customerStore store.CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		customer := &models.Customer{
			ID:        uuid.New(),
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := customerStore.CreateCustomer(c.Request.Context(), customer); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				c.JSON(http.StatusConflict, gin.H{"error": "A customer with this email already exists"})
				return
			}
			slog.Error("Failed to create customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save customer"})
			return
		}

		c.JSON(http.StatusCreated, customer)
	}
}

// GetCustomerHandler handles GET /admin/customers/:id
func GetCustomerHandler(customerStore store.CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		customer, err := customerStore.GetCustomer(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
				return
			}
			slog.Error("Failed to get customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get customer"})
			return
		}

		c.JSON(http.StatusOK, customer)
	}
}

// ListCustomersHandler handles GET /admin/customers
func ListCustomersHandler(customerStore store.CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		pagination := ParsePaginationParams(c)
		customers, totalCount, err := customerStore.ListCustomers(c.Request.Context(), pagination)
		if err != nil {
			slog.Error("Failed to list customers", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list customers"})
			return
		}

		c.JSON(http.StatusOK, paginated(customers, totalCount, pagination))
	}
}

// UpdateCustomerHandler handles PUT /admin/customers/:id
func UpdateCustomerHandler(customerStore store.CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		customer, err := customerStore.GetCustomer(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
				return
			}
			slog.Error("Failed to get customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get customer"})
			return
		}

		customer.Name = req.Name
		customer.Email = req.Email
		customer.Phone = req.Phone
		customer.UpdatedAt = time.Now()

		if err := customerStore.UpdateCustomer(c.Request.Context(), customer); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				c.JSON(http.StatusConflict, gin.H{"error": "A customer with this email already exists"})
				return
			}
			slog.Error("Failed to update customer", "error", err, "customer_id", customer.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update customer"})
			return
		}

		c.JSON(http.StatusOK, customer)
	}
}

// DeleteCustomerHandler handles DELETE /admin/customers/:id
func DeleteCustomerHandler(customerStore store.CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := customerStore.DeleteCustomer(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
				return
			}
			slog.Error("Failed to delete customer", "error", err, "customer_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete customer"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Customer deleted"})
	}
}
