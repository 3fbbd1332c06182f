package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

type LicenseStore interface {
	CreateLicense(ctx context.Context, license *models.License) error
	GetLicense(ctx context.Context, id string) (*models.License, error)
	GetLicenseBySerial(ctx context.Context, serialKey string, productID string) (*models.License, error)
	ListLicensesByProduct(ctx context.Context, productID string, pagination models.PaginationParams) ([]models.License, int, error)
	SetStatus(ctx context.Context, id string, status models.LicenseStatus) error
	AdmitDevice(ctx context.Context, licenseID string, hardwareID string, now time.Time) error
	ResetLicense(ctx context.Context, id string) error
	DeleteLicense(ctx context.Context, id string) error
	DeleteExpiredLicenses(ctx context.Context, productID string) (int, error)
}

type PostgresLicenseStore struct {
	DB *pgxpool.Pool
}

func NewPostgresLicenseStore(db *pgxpool.Pool) *PostgresLicenseStore {
	return &PostgresLicenseStore{DB: db}
}

const licenseColumns = `id, product_id, customer_id, serial_key, status, devices, max_devices, expiry_type, expiry_date, expiry_days, activation_date, created_at, updated_at`

func scanLicense(row pgx.Row) (*models.License, error) {
	var l models.License
	err := row.Scan(&l.ID, &l.ProductID, &l.CustomerID, &l.SerialKey, &l.Status, &l.Devices, &l.MaxDevices, &l.ExpiryType, &l.ExpiryDate, &l.ExpiryDays, &l.ActivationDate, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: license", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan license: %w", err)
	}
	return &l, nil
}

func (s *PostgresLicenseStore) CreateLicense(ctx context.Context, license *models.License) error {
	query := `
		INSERT INTO licenses (id, product_id, customer_id, serial_key, status, devices, max_devices, expiry_type, expiry_date, expiry_days, activation_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.DB.Exec(ctx, query,
		license.ID,
		license.ProductID,
		license.CustomerID,
		license.SerialKey,
		license.Status,
		license.Devices,
		license.MaxDevices,
		license.ExpiryType,
		license.ExpiryDate,
		license.ExpiryDays,
		license.ActivationDate,
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

func (s *PostgresLicenseStore) GetLicense(ctx context.Context, id string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`
	return scanLicense(s.DB.QueryRow(ctx, query, id))
}

// GetLicenseBySerial is scoped to a single product so a serial key can
// never match a license issued for a different product.
func (s *PostgresLicenseStore) GetLicenseBySerial(ctx context.Context, serialKey string, productID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE serial_key = $1 AND product_id = $2`
	return scanLicense(s.DB.QueryRow(ctx, query, serialKey, productID))
}

func (s *PostgresLicenseStore) ListLicensesByProduct(ctx context.Context, productID string, pagination models.PaginationParams) ([]models.License, int, error) {
	countQuery := `SELECT count(*) FROM licenses WHERE product_id = $1`

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery, productID).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of licenses: %w", err)
	}

	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE product_id = $1 ORDER BY created_at DESC`

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query += " LIMIT $2 OFFSET $3"

	rows, err := s.DB.Query(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []models.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, 0, err
		}
		licenses = append(licenses, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, totalCount, nil
}

func (s *PostgresLicenseStore) SetStatus(ctx context.Context, id string, status models.LicenseStatus) error {
	query := `UPDATE licenses SET status = $1, updated_at = now() WHERE id = $2`
	tag, err := s.DB.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to set license status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}
	return nil
}

// AdmitDevice binds a new hardware ID to the license. The registration
// insert and the device-count increment run in one transaction, and the
// increment is conditional on a free slot, so two concurrent admissions
// racing for the last seat cannot both succeed. The first admission ever
// stamps the activation date, which starts the days-from-activation
// expiration clock.
func (s *PostgresLicenseStore) AdmitDevice(ctx context.Context, licenseID string, hardwareID string, now time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	admitQuery := `
		UPDATE licenses
		SET devices = devices + 1,
		    status = $2,
		    activation_date = COALESCE(activation_date, $3),
		    updated_at = $4
		WHERE id = $1 AND devices < max_devices
	`
	tag, err := tx.Exec(ctx, admitQuery, licenseID, models.StatusActive, now.Unix(), now)
	if err != nil {
		return fmt.Errorf("failed to increment device count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license %s", ErrDevicesFull, licenseID)
	}

	regQuery := `
		INSERT INTO registrations (id, license_id, hardware_id, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3)
	`
	if _, err := tx.Exec(ctx, regQuery, licenseID, hardwareID, now); err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ResetLicense unlinks every device and zeroes the device count. Expiry
// fields are untouched; a revoked or expired license stays in that state.
func (s *PostgresLicenseStore) ResetLicense(ctx context.Context, id string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM registrations WHERE license_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear registrations: %w", err)
	}

	query := `
		UPDATE licenses
		SET devices = 0,
		    status = CASE WHEN status = $2 THEN $3 ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, id, models.StatusActive, models.StatusInactive)
	if err != nil {
		return fmt.Errorf("failed to reset license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresLicenseStore) DeleteLicense(ctx context.Context, id string) error {
	// Registrations cascade via FK.
	query := `DELETE FROM licenses WHERE id = $1`
	tag, err := s.DB.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}
	return nil
}

func (s *PostgresLicenseStore) DeleteExpiredLicenses(ctx context.Context, productID string) (int, error) {
	query := `DELETE FROM licenses WHERE product_id = $1 AND status = $2`
	tag, err := s.DB.Exec(ctx, query, productID, models.StatusExpired)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired licenses: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
