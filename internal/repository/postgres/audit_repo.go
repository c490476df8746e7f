package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/compliance-console/internal/audit"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch пакетная вставка событий аудита одним запросом.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 10
	placeholders := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10))

		var details []byte
		if len(e.Details) > 0 {
			details, _ = json.Marshal(e.Details)
		}

		vals = append(vals,
			e.ID, e.TraceID, e.Actor, e.Action, e.EntityType,
			e.EntityID, details, e.Status, e.Error, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_logs (id, trace_id, actor, action, entity_type, entity_id, details, status, error, timestamp) VALUES %s",
		strings.Join(placeholders, ","),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// FetchLogs выборка журнала с фильтрами вкладки аудита.
// Пустые поля фильтра не ограничивают выборку.
func (r *AuditRepo) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.EntityID != "" {
		where = append(where, "entity_id = "+arg(f.EntityID))
	}
	if f.Actor != "" {
		where = append(where, "actor = "+arg(f.Actor))
	}
	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}
	if !f.From.IsZero() {
		where = append(where, "timestamp >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "timestamp < "+arg(f.To))
	}

	query := `SELECT id, trace_id, actor, action, entity_type, entity_id, details, status, error, timestamp FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}
	query += " ORDER BY timestamp DESC LIMIT " + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]audit.AuditEvent, 0)
	for rows.Next() {
		var (
			e       audit.AuditEvent
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Actor, &e.Action, &e.EntityType, &e.EntityID,
			&details, &e.Status, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return logs, nil
}
