package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

type StatsStore interface {
	GetDashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

type PostgresStatsStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStatsStore(db *pgxpool.Pool) *PostgresStatsStore {
	return &PostgresStatsStore{DB: db}
}

func (s *PostgresStatsStore) GetDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&stats.TotalProducts); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM licenses`).Scan(&stats.TotalLicenses); err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", err)
	}

	// Seats: activated = occupied device slots, awaiting = slots still free
	// on non-revoked, non-expired licenses.
	seatQuery := `
		SELECT
			COALESCE(sum(devices), 0),
			COALESCE(sum(CASE WHEN status IN ($1, $2) THEN max_devices - devices ELSE 0 END), 0)
		FROM licenses
	`
	if err := s.DB.QueryRow(ctx, seatQuery, models.StatusInactive, models.StatusActive).Scan(&stats.ActivatedSeats, &stats.AwaitingSeats); err != nil {
		return nil, fmt.Errorf("failed to aggregate seats: %w", err)
	}

	if stats.ActivatedSeats == 0 && stats.AwaitingSeats == 0 {
		stats.ActivationRatio = 100
	} else {
		stats.ActivationRatio = float64(stats.ActivatedSeats) / float64(stats.ActivatedSeats+stats.AwaitingSeats) * 100
	}

	validationQuery := `
		SELECT
			count(*) FILTER (WHERE result = $1),
			count(*) FILTER (WHERE result = $2)
		FROM validation_logs
	`
	if err := s.DB.QueryRow(ctx, validationQuery, models.ResultSuccess, models.ResultError).Scan(&stats.SuccessfulValidations, &stats.FailedValidations); err != nil {
		return nil, fmt.Errorf("failed to count validations: %w", err)
	}

	return stats, nil
}
