package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/ovpnbot/internal/models"
)

// DefaultAuditLimit is used when List is called with a non-positive limit
const DefaultAuditLimit = 50

// sqliteTimeLayout is the format of SQLite's CURRENT_TIMESTAMP
const sqliteTimeLayout = "2006-01-02 15:04:05"

const auditColumns = `id, timestamp, action, username, actor, source, success, stage, error_msg, details`

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (action, username, actor, source, success, stage, error_msg, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		log.Action,
		nullString(log.Username),
		log.Actor,
		log.Source,
		boolToInt(log.Success),
		nullString(log.Stage),
		nullString(log.ErrorMsg),
		nullString(log.Details),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	log.ID = id
	log.Timestamp = time.Now()

	return nil
}

// List lists audit logs with optional filters
func (r *AuditRepository) List(ctx context.Context, username string, action string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE 1=1
	`
	args := []any{}

	if username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog

	for rows.Next() {
		log := &models.AuditLog{}
		var success int
		var username, stage, errorMsg, details sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Timestamp,
			&log.Action,
			&username,
			&log.Actor,
			&log.Source,
			&success,
			&stage,
			&errorMsg,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		log.Success = success == 1
		log.Username = username.String
		log.Stage = stage.String
		log.ErrorMsg = errorMsg.String
		log.Details = details.String

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return logs, nil
}

// CountFailures counts unsuccessful entries of an action recorded by source
// since the given time
func (r *AuditRepository) CountFailures(ctx context.Context, action, source string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = ? AND source = ? AND success = 0 AND timestamp >= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, action, source, sqliteTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// DeleteOld deletes audit logs older than the given date
func (r *AuditRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE timestamp < ?
	`

	result, err := r.db.ExecContext(ctx, query, sqliteTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// sqliteTime formats t like CURRENT_TIMESTAMP (UTC, no offset) so that
// comparisons against default timestamps are textual and exact.
func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
