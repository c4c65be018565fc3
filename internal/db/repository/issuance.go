package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/ovpnbot/internal/models"
)

// ErrIssuanceNotFound is returned when no issuance is recorded for a username
var ErrIssuanceNotFound = errors.New("issuance not found")

const issuanceColumns = `id, username, config_path, fingerprint, serial, valid_to, partial, issued_at`

// IssuanceRepository handles issuance record data access
type IssuanceRepository struct {
	db *sql.DB
}

// NewIssuanceRepository creates a new issuance repository
func NewIssuanceRepository(db *sql.DB) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

// Create creates a new issuance record
func (r *IssuanceRepository) Create(ctx context.Context, rec *models.Issuance) error {
	query := `
		INSERT INTO issuances (username, config_path, fingerprint, serial, valid_to, partial)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var validTo any
	if !rec.ValidTo.IsZero() {
		validTo = rec.ValidTo
	}

	result, err := r.db.ExecContext(ctx, query,
		rec.Username,
		nullString(rec.ConfigPath),
		nullString(rec.Fingerprint),
		nullString(rec.Serial),
		validTo,
		boolToInt(rec.Partial),
	)
	if err != nil {
		return fmt.Errorf("failed to create issuance record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	rec.IssuedAt = time.Now()

	return nil
}

// GetLatestByUsername retrieves the most recent issuance for a username
func (r *IssuanceRepository) GetLatestByUsername(ctx context.Context, username string) (*models.Issuance, error) {
	query := `SELECT ` + issuanceColumns + `
		FROM issuances
		WHERE username = ?
		ORDER BY issued_at DESC, id DESC
		LIMIT 1
	`

	rec, err := scanIssuance(r.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIssuanceNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issuance: %w", err)
	}

	return rec, nil
}

// List lists issuance records, newest first. An empty username matches
// every user; onlyPartial restricts the result to partial issuances.
func (r *IssuanceRepository) List(ctx context.Context, username string, onlyPartial bool, limit int) ([]*models.Issuance, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	query := `SELECT ` + issuanceColumns + `
		FROM issuances
		WHERE 1=1
	`
	args := []any{}

	if username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}

	if onlyPartial {
		query += " AND partial = 1"
	}

	query += " ORDER BY issued_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	defer rows.Close()

	var records []*models.Issuance

	for rows.Next() {
		rec, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssuance(s scanner) (*models.Issuance, error) {
	rec := &models.Issuance{}
	var configPath, fingerprint, serial sql.NullString
	var validTo sql.NullTime
	var partial int

	err := s.Scan(
		&rec.ID,
		&rec.Username,
		&configPath,
		&fingerprint,
		&serial,
		&validTo,
		&partial,
		&rec.IssuedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ConfigPath = configPath.String
	rec.Fingerprint = fingerprint.String
	rec.Serial = serial.String
	if validTo.Valid {
		rec.ValidTo = validTo.Time
	}
	rec.Partial = partial == 1

	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
