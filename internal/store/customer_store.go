package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type CustomerStore interface {
	ListCustomers(ctx context.Context, pagination models.PaginationParams) ([]models.Customer, int, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	DeleteCustomer(ctx context.Context, id string) error
}

type PostgresCustomerStore struct {
	DB *pgxpool.Pool
}

func NewPostgresCustomerStore(db *pgxpool.Pool) *PostgresCustomerStore {
	return &PostgresCustomerStore{DB: db}
}

func (s *PostgresCustomerStore) ListCustomers(ctx context.Context, pagination models.PaginationParams) ([]models.Customer, int, error) {
	var totalCount int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of customers: %w", err)
	}

	query := `
		SELECT id, name, email, COALESCE(phone, ''), created_at, updated_at
		FROM customers
		ORDER BY name ASC
	`

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
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return customers, totalCount, nil
}

func (s *PostgresCustomerStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.DB.Exec(ctx, query, customer.ID, customer.Name, customer.Email, customer.Phone, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: customer email", ErrDuplicate)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (s *PostgresCustomerStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	query := `
		SELECT id, name, email, COALESCE(phone, ''), created_at, updated_at
		FROM customers
		WHERE id = $1
	`
	var c models.Customer
	err := s.DB.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (s *PostgresCustomerStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		UPDATE customers
		SET name = $1, email = $2, phone = $3, updated_at = $4
		WHERE id = $5
	`
	tag, err := s.DB.Exec(ctx, query, customer.Name, customer.Email, customer.Phone, customer.UpdatedAt, customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: customer email", ErrDuplicate)
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer", ErrNotFound)
	}
	return nil
}

func (s *PostgresCustomerStore) DeleteCustomer(ctx context.Context, id string) error {
	query := `DELETE FROM customers WHERE id = $1`
	tag, err := s.DB.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer", ErrNotFound)
	}
	return nil
}
