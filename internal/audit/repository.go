package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one entry. Re-inserting an id already stored is a no-op so
// redelivered events do not duplicate rows.
func (r *Repository) Insert(ctx context.Context, l *Log) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	details := l.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, event_type, severity, resource_type, resource_id, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		l.ID, l.UserID, l.EventType, l.Severity, l.ResourceType, l.ResourceID, details, l.IPAddress, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListByUser returns one page of the user's entries, newest first, and the
// total number of matching entries.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]Log, int64, error) {
	params = params.normalized()
	where, args := buildFilter(userID, params)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := fmt.Sprintf(
		`SELECT id, user_id, event_type, severity, resource_type, resource_id, details, ip_address, created_at
		 FROM audit_logs WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.UserID, &l.EventType, &l.Severity,
			&l.ResourceType, &l.ResourceID, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit logs: %w", err)
	}

	return logs, total, nil
}

// buildFilter returns the WHERE clause and its positional arguments.
func buildFilter(userID uuid.UUID, params ListParams) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	add := func(column, op string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}

	if params.EventType != "" {
		add("event_type", "=", params.EventType)
	}
	if params.Severity != "" {
		add("severity", "=", params.Severity)
	}
	if params.From != nil {
		add("created_at", ">=", *params.From)
	}
	if params.To != nil {
		add("created_at", "<=", *params.To)
	}

	return strings.Join(conditions, " AND "), args
}
