package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/models"
)

// ChangelogFilter narrows operator-audit queries; nil fields match all.
type ChangelogFilter struct {
	LicenseID *string
	Actor     *string
	Action    *string
}

// ValidationLogFilter narrows validation-audit queries; nil fields match all.
type ValidationLogFilter struct {
	Result    *string
	Code      *string
	SerialKey *string
	APIKey    *string
}

type LogStore interface {
	CreateChangelog(ctx context.Context, entry *models.Changelog) error
	CreateValidationLog(ctx context.Context, entry *models.ValidationLog) error
	ListChangelogs(ctx context.Context, filter ChangelogFilter, pagination models.PaginationParams) ([]models.Changelog, int, error)
	ListValidationLogs(ctx context.Context, filter ValidationLogFilter, pagination models.PaginationParams) ([]models.ValidationLog, int, error)
}

type PostgresLogStore struct {
	DB *pgxpool.Pool
}

func NewPostgresLogStore(db *pgxpool.Pool) *PostgresLogStore {
	return &PostgresLogStore{DB: db}
}

func (s *PostgresLogStore) CreateChangelog(ctx context.Context, entry *models.Changelog) error {
	query := `
		INSERT INTO changelogs (license_id, actor, action, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.DB.QueryRow(
		ctx,
		query,
		entry.LicenseID,
		entry.Actor,
		entry.Action,
		entry.Message,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (s *PostgresLogStore) CreateValidationLog(ctx context.Context, entry *models.ValidationLog) error {
	query := `
		INSERT INTO validation_logs (result, code, ip_address, api_key, serial_key, hardware_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.DB.QueryRow(
		ctx,
		query,
		entry.Result,
		entry.Code,
		entry.IPAddress,
		entry.APIKey,
		entry.SerialKey,
		entry.HardwareID,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (s *PostgresLogStore) ListChangelogs(ctx context.Context, filter ChangelogFilter, pagination models.PaginationParams) ([]models.Changelog, int, error) {
	query := `
		SELECT id, license_id, actor, action, message, created_at
		FROM changelogs`
	countQuery := `SELECT count(*) FROM changelogs`

	var args []interface{}
	var where string
	appendClause := func(column string, value interface{}) {
		args = append(args, value)
		clause := fmt.Sprintf("%s = $%d", column, len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	if filter.LicenseID != nil {
		appendClause("license_id", *filter.LicenseID)
	}
	if filter.Actor != nil {
		appendClause("actor", *filter.Actor)
	}
	if filter.Action != nil {
		appendClause("action", *filter.Action)
	}

	query += where
	countQuery += where

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of changelogs: %w", err)
	}

	query += ` ORDER BY created_at DESC`

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query changelogs: %w", err)
	}
	defer rows.Close()

	var logs []models.Changelog
	for rows.Next() {
		var entry models.Changelog
		if err := rows.Scan(&entry.ID, &entry.LicenseID, &entry.Actor, &entry.Action, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan changelog: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating changelogs: %w", err)
	}

	return logs, totalCount, nil
}

func (s *PostgresLogStore) ListValidationLogs(ctx context.Context, filter ValidationLogFilter, pagination models.PaginationParams) ([]models.ValidationLog, int, error) {
	query := `
		SELECT id, result, code, ip_address, api_key, serial_key, hardware_id, created_at
		FROM validation_logs`
	countQuery := `SELECT count(*) FROM validation_logs`

	var args []interface{}
	var where string
	appendClause := func(column string, value interface{}) {
		args = append(args, value)
		clause := fmt.Sprintf("%s = $%d", column, len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	if filter.Result != nil {
		appendClause("result", *filter.Result)
	}
	if filter.Code != nil {
		appendClause("code", *filter.Code)
	}
	if filter.SerialKey != nil {
		appendClause("serial_key", *filter.SerialKey)
	}
	if filter.APIKey != nil {
		appendClause("api_key", *filter.APIKey)
	}

	query += where
	countQuery += where

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of validation logs: %w", err)
	}

	query += ` ORDER BY created_at DESC`

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query validation logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ValidationLog
	for rows.Next() {
		var entry models.ValidationLog
		if err := rows.Scan(&entry.ID, &entry.Result, &entry.Code, &entry.IPAddress, &entry.APIKey, &entry.SerialKey, &entry.HardwareID, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan validation log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating validation logs: %w", err)
	}

	return logs, totalCount, nil
}
