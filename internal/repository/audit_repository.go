package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scoutexam/exam-backend/internal/model"
)

// AuditRepository handles the admin action log.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert appends an entry to the log.
func (r *AuditRepository) Insert(ctx context.Context, entry *model.AuditLog) error {
	var details any
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO admin_logs (actor_id, action, resource_type, resource_id, details)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 RETURNING id, created_at`,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// List retrieves log entries, newest first, with pagination.
func (r *AuditRepository) List(ctx context.Context, page, perPage int) ([]model.AuditLog, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, action, resource_type, resource_id, details, created_at
		 FROM admin_logs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []model.AuditLog{}
	for rows.Next() {
		var l model.AuditLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.ResourceType, &l.ResourceID, &details, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		l.Details = details
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}
