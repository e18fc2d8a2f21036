package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Timeline returns entries matching the filters, newest first. Paging is
// applied by the caller through limit and offset.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filters.From.IsZero() {
		where = append(where, "occurred_at >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		where = append(where, "occurred_at <= "+arg(filters.To))
	}
	if v := strings.TrimSpace(filters.Actor); v != "" {
		where = append(where, "actor = "+arg(v))
	}
	if v := strings.TrimSpace(filters.Entity); v != "" {
		where = append(where, "entity = "+arg(v))
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		where = append(where, "action = "+arg(v))
	}
	if v := strings.TrimSpace(filters.EntityID); v != "" {
		where = append(where, "entity_id = "+arg(v))
	}

	query := `SELECT occurred_at, actor, action, entity, entity_id, meta FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}
	if offset > 0 {
		query += " OFFSET " + arg(offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
