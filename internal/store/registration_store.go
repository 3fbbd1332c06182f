package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

type RegistrationStore interface {
	GetRegistration(ctx context.Context, licenseID string, hardwareID string) (*models.Registration, error)
	ListRegistrations(ctx context.Context, licenseID string) ([]models.Registration, error)
	DeleteRegistration(ctx context.Context, licenseID string, hardwareID string) error
}

type PostgresRegistrationStore struct {
	DB *pgxpool.Pool
}

func NewPostgresRegistrationStore(db *pgxpool.Pool) *PostgresRegistrationStore {
	return &PostgresRegistrationStore{DB: db}
}

func (s *PostgresRegistrationStore) GetRegistration(ctx context.Context, licenseID string, hardwareID string) (*models.Registration, error) {
	query := `
		SELECT id, license_id, hardware_id, created_at
		FROM registrations
		WHERE license_id = $1 AND hardware_id = $2
	`
	var r models.Registration
	err := s.DB.QueryRow(ctx, query, licenseID, hardwareID).Scan(&r.ID, &r.LicenseID, &r.HardwareID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: registration", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return &r, nil
}

func (s *PostgresRegistrationStore) ListRegistrations(ctx context.Context, licenseID string) ([]models.Registration, error) {
	query := `
		SELECT id, license_id, hardware_id, created_at
		FROM registrations
		WHERE license_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.DB.Query(ctx, query, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var r models.Registration
		if err := rows.Scan(&r.ID, &r.LicenseID, &r.HardwareID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}
	return regs, nil
}

// DeleteRegistration unlinks a device and gives its seat back to the
// license in the same transaction.
func (s *PostgresRegistrationStore) DeleteRegistration(ctx context.Context, licenseID string, hardwareID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM registrations WHERE license_id = $1 AND hardware_id = $2`, licenseID, hardwareID)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: registration", ErrNotFound)
	}

	decQuery := `UPDATE licenses SET devices = devices - 1, updated_at = now() WHERE id = $1 AND devices > 0`
	if _, err := tx.Exec(ctx, decQuery, licenseID); err != nil {
		return fmt.Errorf("failed to decrement device count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
