package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/compliance-console/internal/domain"
)

// GetDashboardStats агрегирует очередь согласований и результаты проверок.
func (r *ComplianceRepo) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	s := &domain.DashboardStats{
		Workflows: domain.WorkflowStats{
			ByStatus:       map[domain.WorkflowStatus]int64{},
			PendingByLevel: map[domain.ApprovalLevel]int64{},
			ByRiskLevel:    map[domain.RiskLevel]int64{},
		},
		Checks: domain.CheckStats{
			ByType:   map[domain.CheckType]int64{},
			ByResult: map[domain.CheckResult]int64{},
		},
	}

	// 1. Согласования по статусу и уровню риска
	rows, err := r.pool.Query(ctx, `
		SELECT status, risk_level, current_level, COUNT(*)
		FROM approval_workflows
		GROUP BY status, risk_level, current_level`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate workflows: %w", err)
	}
	for rows.Next() {
		var (
			status, risk, level string
			n                   int64
		)
		if err := rows.Scan(&status, &risk, &level, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: failed to scan workflow stats: %w", err)
		}
		ws := domain.WorkflowStatus(status)
		s.Workflows.Total += n
		s.Workflows.ByStatus[ws] += n
		s.Workflows.ByRiskLevel[domain.RiskLevel(risk)] += n
		if ws == domain.WorkflowPending || ws == domain.WorkflowEscalated {
			s.Workflows.PendingByLevel[domain.ApprovalLevel(level)] += n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// 2. Проверки по типу и результату
	rows, err = r.pool.Query(ctx, `
		SELECT type, COALESCE(result, ''), COUNT(*)
		FROM compliance_checks
		GROUP BY type, result`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate checks: %w", err)
	}
	for rows.Next() {
		var (
			typ, result string
			n           int64
		)
		if err := rows.Scan(&typ, &result, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: failed to scan check stats: %w", err)
		}
		s.Checks.Total += n
		s.Checks.ByType[domain.CheckType(typ)] += n
		if result != "" {
			s.Checks.ByResult[domain.CheckResult(result)] += n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// 3. Скорость принятия решений
	err = r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - created_at)) / 3600), 0),
			COUNT(*) FILTER (WHERE completed_at > NOW() - INTERVAL '7 days')
		FROM approval_workflows
		WHERE completed_at IS NOT NULL`).Scan(&s.Quality.AvgDecisionHours, &s.Quality.CompletedLast7d)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to compute decision quality: %w", err)
	}

	return s, nil
}
