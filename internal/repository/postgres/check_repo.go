package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/compliance-console/internal/domain"
)

const checkColumns = `id, entity_id, type, provider, external_id, status, result, details, created_at, completed_at`

func scanCheck(row pgx.Row) (*domain.ComplianceCheck, error) {
	var (
		c      domain.ComplianceCheck
		result *string
	)
	err := row.Scan(&c.ID, &c.EntityID, &c.Type, &c.Provider, &c.ExternalID, &c.Status,
		&result, &c.Details, &c.CreatedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	if result != nil {
		res := domain.CheckResult(*result)
		c.Result = &res
	}
	return &c, nil
}

// CreateCheck сохраняет запись о запущенной KYC/AML/Risk проверке.
func (r *ComplianceRepo) CreateCheck(ctx context.Context, c *domain.ComplianceCheck) error {
	query := `INSERT INTO compliance_checks (` + checkColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query, c.ID, c.EntityID, string(c.Type), c.Provider, c.ExternalID,
		string(c.Status), resultString(c.Result), nullableJSON(c.Details), c.CreatedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create compliance check: %w", err)
	}
	return nil
}

func (r *ComplianceRepo) GetCheck(ctx context.Context, id string) (*domain.ComplianceCheck, error) {
	query := `SELECT ` + checkColumns + ` FROM compliance_checks WHERE id = $1`

	c, err := scanCheck(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("compliance check %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to get compliance check: %w", err)
	}
	return c, nil
}

// UpdateCheck фиксирует статус/результат, полученный от провайдера.
func (r *ComplianceRepo) UpdateCheck(ctx context.Context, c *domain.ComplianceCheck) error {
	query := `
		UPDATE compliance_checks
		SET status = $1, result = $2, details = COALESCE($3, details), completed_at = $4
		WHERE id = $5`

	ct, err := r.pool.Exec(ctx, query, string(c.Status), resultString(c.Result), nullableJSON(c.Details), c.CompletedAt, c.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update compliance check: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("compliance check %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// ListChecks проверки по сущности, свежие сверху.
func (r *ComplianceRepo) ListChecks(ctx context.Context, entityID string) ([]*domain.ComplianceCheck, error) {
	query := `SELECT ` + checkColumns + ` FROM compliance_checks WHERE entity_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query compliance checks: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.ComplianceCheck, 0)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan compliance check: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func resultString(r *domain.CheckResult) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

// nullableJSON — пустой payload пишем как NULL, а не как невалидный jsonb
func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
