package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

type ProductStore interface {
	ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProductByAPIKey(ctx context.Context, apiKey string) (*models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type PostgresProductStore struct {
	DB *pgxpool.Pool
}

func NewPostgresProductStore(db *pgxpool.Pool) *PostgresProductStore {
	return &PostgresProductStore{DB: db}
}

const productColumns = `id, name, COALESCE(category, ''), COALESCE(image, ''), COALESCE(details, ''), api_key, public_key, private_key, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Image, &p.Details, &p.APIKey, &p.PublicKey, &p.PrivateKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}

func (s *PostgresProductStore) ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error) {
	countQuery := `SELECT count(*) FROM products`

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products ORDER BY name ASC`

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query += " LIMIT $1 OFFSET $2"

	rows, err := s.DB.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return products, totalCount, nil
}

func (s *PostgresProductStore) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (id, name, category, image, details, api_key, public_key, private_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.DB.Exec(ctx, query, product.ID, product.Name, product.Category, product.Image, product.Details, product.APIKey, product.PublicKey, product.PrivateKey, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *PostgresProductStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(s.DB.QueryRow(ctx, query, id))
}

// GetProductByAPIKey is the device-facing product lookup. Matching is
// exact and case-sensitive; an empty key never matches anything.
func (s *PostgresProductStore) GetProductByAPIKey(ctx context.Context, apiKey string) (*models.Product, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: product", ErrNotFound)
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE api_key = $1`
	return scanProduct(s.DB.QueryRow(ctx, query, apiKey))
}

// UpdateProduct changes metadata only. The API key and RSA pair are
// immutable after creation and deliberately absent from the statement.
func (s *PostgresProductStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, category = $2, image = $3, details = $4, updated_at = $5
		WHERE id = $6
	`
	tag, err := s.DB.Exec(ctx, query, product.Name, product.Category, product.Image, product.Details, product.UpdatedAt, product.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", ErrNotFound)
	}
	return nil
}

func (s *PostgresProductStore) DeleteProduct(ctx context.Context, id string) error {
	query := `DELETE FROM products WHERE id = $1`
	tag, err := s.DB.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", ErrNotFound)
	}
	return nil
}
