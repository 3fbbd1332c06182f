package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyward/internal/crypto"
	"keyward/internal/models"
	"keyward/internal/service"
	"keyward/internal/store"
)

type productRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Details  string `json:"details"`
}

// CreateProductHandler handles POST /admin/products. Creation mints the
// product's API key and RSA pair; both are immutable afterwards because
// the public key ships inside client builds.
func CreateProductHandler(productStore store.ProductStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		apiKey, err := service.GenerateAPIKey()
		if err != nil {
			slog.Error("Failed to generate API key", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
			return
		}

		publicKey, privateKey, err := crypto.GenerateKeyPair()
		if err != nil {
			slog.Error("Failed to generate RSA key pair", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate key pair"})
			return
		}

		product := &models.Product{
			ID:         uuid.New(),
			Name:       req.Name,
			Category:   req.Category,
			Image:      req.Image,
			Details:    req.Details,
			APIKey:     apiKey,
			PublicKey:  publicKey,
			PrivateKey: privateKey,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}

		if err := productStore.CreateProduct(c.Request.Context(), product); err != nil {
			slog.Error("Failed to create product", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save product"})
			return
		}

		actor := Actor(c)
		service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
			Actor:   actor,
			Action:  "CreatedProduct",
			Message: fmt.Sprintf("%s created product %s (%s)", actor, product.Name, product.ID),
		})

		slog.Info("Product created", "product_id", product.ID, "name", product.Name, "actor", actor)
		c.JSON(http.StatusCreated, product)
	}
}

// GetProductHandler handles GET /admin/products/:id
func GetProductHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := productStore.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to get product", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get product"})
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

// ListProductsHandler handles GET /admin/products
func ListProductsHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		pagination := ParsePaginationParams(c)
		products, totalCount, err := productStore.ListProducts(c.Request.Context(), pagination)
		if err != nil {
			slog.Error("Failed to list products", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
			return
		}

		c.JSON(http.StatusOK, paginated(products, totalCount, pagination))
	}
}

// UpdateProductHandler handles PUT /admin/products/:id. Metadata only;
// the API key and RSA pair never change.
func UpdateProductHandler(productStore store.ProductStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		product, err := productStore.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to get product", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get product"})
			return
		}

		product.Name = req.Name
		product.Category = req.Category
		product.Image = req.Image
		product.Details = req.Details
		product.UpdatedAt = time.Now()

		if err := productStore.UpdateProduct(c.Request.Context(), product); err != nil {
			slog.Error("Failed to update product", "error", err, "product_id", product.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
			return
		}

		actor := Actor(c)
		service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
			Actor:   actor,
			Action:  "UpdatedProduct",
			Message: fmt.Sprintf("%s updated product %s (%s)", actor, product.Name, product.ID),
		})

		c.JSON(http.StatusOK, product)
	}
}

// DeleteProductHandler handles DELETE /admin/products/:id. Licenses and
// registrations under the product go with it via FK cascade.
func DeleteProductHandler(productStore store.ProductStore, logStore store.LogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := productStore.DeleteProduct(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to delete product", "error", err, "product_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
			return
		}

		actor := Actor(c)
		service.AsyncLogChangelog(c.Request.Context(), logStore, &models.Changelog{
			Actor:   actor,
			Action:  "DeletedProduct",
			Message: fmt.Sprintf("%s deleted product %s and all of its licenses", actor, id),
		})

		c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
	}
}

// GetProductPublicKeyHandler handles GET /admin/products/:id/public-key.
// Serves the PEM block verbatim so it can be pasted into a client build.
func GetProductPublicKeyHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := productStore.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to get product", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get product"})
			return
		}

		c.Data(http.StatusOK, "application/x-pem-file", product.PublicKey)
	}
}
