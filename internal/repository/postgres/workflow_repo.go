package postgres

/*
Файл workflow_repo.go — хранение многоуровневых согласований (approval_workflows).
Список ревьюеров лежит JSONB-массивом внутри строки, идентичность ревьюера — (userId, level).
Изменение записи — условный UPDATE по version: проигравший параллельный апрув получает ErrConflict.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/compliance-console/internal/domain"
)

const workflowColumns = `id, entity_id, entity_type, entity_name, status, risk_level, required_levels,
	current_level, approvers, escalation_reason, escalated_by, escalated_at, completed_at,
	version, created_at, updated_at`

// workflowRow — форма строки таблицы, контракт между сервисом и хранилищем.
type workflowRow struct {
	ID               string
	EntityID         string
	EntityType       string
	EntityName       string
	Status           string
	RiskLevel        string
	RequiredLevels   []string
	CurrentLevel     string
	Approvers        []byte
	EscalationReason *string
	EscalatedBy      *string
	EscalatedAt      *time.Time
	CompletedAt      *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func toWorkflowRow(w *domain.ApprovalWorkflow) (*workflowRow, error) {
	approvers := w.Approvers
	if approvers == nil {
		approvers = []domain.Approver{}
	}
	raw, err := json.Marshal(approvers)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to encode approvers: %w", err)
	}

	levels := make([]string, len(w.RequiredLevels))
	for i, l := range w.RequiredLevels {
		levels[i] = string(l)
	}

	return &workflowRow{
		ID:               w.ID,
		EntityID:         w.EntityID,
		EntityType:       string(w.EntityType),
		EntityName:       w.EntityName,
		Status:           string(w.Status),
		RiskLevel:        string(w.RiskLevel),
		RequiredLevels:   levels,
		CurrentLevel:     string(w.CurrentLevel),
		Approvers:        raw,
		EscalationReason: w.EscalationReason,
		EscalatedBy:      w.EscalatedBy,
		EscalatedAt:      w.EscalatedAt,
		CompletedAt:      w.CompletedAt,
		Version:          w.Version,
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
	}, nil
}

func (row *workflowRow) toDomain() (*domain.ApprovalWorkflow, error) {
	var approvers []domain.Approver
	if len(row.Approvers) > 0 {
		if err := json.Unmarshal(row.Approvers, &approvers); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode approvers of %s: %w", row.ID, err)
		}
	}
	if approvers == nil {
		approvers = []domain.Approver{}
	}

	levels := make([]domain.ApprovalLevel, len(row.RequiredLevels))
	for i, l := range row.RequiredLevels {
		levels[i] = domain.ApprovalLevel(l)
	}

	return &domain.ApprovalWorkflow{
		ID:               row.ID,
		EntityID:         row.EntityID,
		EntityType:       domain.EntityType(row.EntityType),
		EntityName:       row.EntityName,
		Status:           domain.WorkflowStatus(row.Status),
		RiskLevel:        domain.RiskLevel(row.RiskLevel),
		RequiredLevels:   levels,
		CurrentLevel:     domain.ApprovalLevel(row.CurrentLevel),
		Approvers:        approvers,
		EscalationReason: row.EscalationReason,
		EscalatedBy:      row.EscalatedBy,
		EscalatedAt:      row.EscalatedAt,
		CompletedAt:      row.CompletedAt,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func scanWorkflow(row pgx.Row) (*domain.ApprovalWorkflow, error) {
	var r workflowRow
	err := row.Scan(
		&r.ID, &r.EntityID, &r.EntityType, &r.EntityName, &r.Status, &r.RiskLevel,
		&r.RequiredLevels, &r.CurrentLevel, &r.Approvers, &r.EscalationReason,
		&r.EscalatedBy, &r.EscalatedAt, &r.CompletedAt, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

// CreateWorkflow вставляет новую запись согласования.
func (r *ComplianceRepo) CreateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow) error {
	row, err := toWorkflowRow(w)
	if err != nil {
		return err
	}

	query := `INSERT INTO approval_workflows (` + workflowColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.pool.Exec(ctx, query,
		row.ID, row.EntityID, row.EntityType, row.EntityName, row.Status, row.RiskLevel,
		row.RequiredLevels, row.CurrentLevel, row.Approvers, row.EscalationReason,
		row.EscalatedBy, row.EscalatedAt, row.CompletedAt, row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create workflow: %w", err)
	}
	return nil
}

// GetWorkflowByID получение одного согласования.
func (r *ComplianceRepo) GetWorkflowByID(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = $1`

	w, err := scanWorkflow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to get workflow: %w", err)
	}
	return w, nil
}

// UpdateWorkflow сохраняет изменяемые поля при условии, что version в базе
// совпадает с expectedVersion. При успехе w.Version получает новое значение.
func (r *ComplianceRepo) UpdateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow, expectedVersion int64) error {
	row, err := toWorkflowRow(w)
	if err != nil {
		return err
	}

	// RETURNING избавляет от повторного SELECT после записи
	query := `
		UPDATE approval_workflows
		SET status = $1,
		    current_level = $2,
		    approvers = $3,
		    escalation_reason = $4,
		    escalated_by = $5,
		    escalated_at = $6,
		    completed_at = $7,
		    updated_at = $8,
		    version = version + 1
		WHERE id = $9 AND version = $10
		RETURNING version`

	var newVersion int64
	err = r.pool.QueryRow(ctx, query,
		row.Status, row.CurrentLevel, row.Approvers, row.EscalationReason, row.EscalatedBy,
		row.EscalatedAt, row.CompletedAt, row.UpdatedAt, row.ID, expectedVersion,
	).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо записи нет, либо (что чаще) её успели изменить параллельно
			var exists bool
			if qErr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approval_workflows WHERE id = $1)`, row.ID).Scan(&exists); qErr != nil {
				return fmt.Errorf("postgres: failed to check workflow: %w", qErr)
			}
			if !exists {
				return fmt.Errorf("workflow %s: %w", row.ID, domain.ErrNotFound)
			}
			return fmt.Errorf("workflow %s (version %d): %w", row.ID, expectedVersion, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: failed to update workflow: %w", err)
	}

	w.Version = newVersion
	return nil
}

// workflowOrder — ключ сортировки из вкладки -> выражение ORDER BY
var workflowOrder = map[string]string{
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"risk_level":  "CASE risk_level WHEN 'LOW' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END",
	"entity_name": "lower(entity_name)",
	"status":      "status",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// QueryWorkflows фильтрация, поиск и сортировка списка согласований на стороне базы.
func (r *ComplianceRepo) QueryWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	q := f.WorkflowQuery
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if q.EntityType != "" {
		where = append(where, "entity_type = "+arg(string(q.EntityType)))
	}
	if q.EntityID != "" {
		where = append(where, "entity_id = "+arg(q.EntityID))
	}
	if q.RiskLevel != "" {
		where = append(where, "risk_level = "+arg(string(q.RiskLevel)))
	}
	if q.ApproverID != "" {
		// Содержит элемент {"userId": ...} — попадает в GIN индекс jsonb_path_ops
		filter, _ := json.Marshal([]map[string]string{{"userId": q.ApproverID}})
		where = append(where, "approvers @> "+arg(filter)+"::jsonb")
	}

	if f.Search != "" {
		pattern := arg("%" + likeEscaper.Replace(f.Search) + "%")
		where = append(where, "(entity_name ILIKE "+pattern+" OR entity_id ILIKE "+pattern+" OR id::text ILIKE "+pattern+")")
	}

	query := `SELECT ` + workflowColumns + ` FROM approval_workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(f)

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	query += " LIMIT " + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query workflows: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalWorkflow, 0)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan workflow: %w", err)
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}

// orderBy повторяет WorkflowFilter.Sort: неизвестный ключ — created_at, без направления — по убыванию.
func orderBy(f domain.WorkflowFilter) string {
	expr, ok := workflowOrder[f.SortKey]
	if !ok {
		expr = "created_at"
	}
	dir := "DESC"
	if f.SortDir == domain.SortAsc {
		dir = "ASC"
	}
	return expr + " " + dir + ", created_at DESC, id"
}
