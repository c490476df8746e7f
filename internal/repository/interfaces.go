package repository

import (
	"context"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
)

// WorkflowRepository — хранилище согласований.
// UpdateWorkflow условный: проигравший параллельную запись получает domain.ErrConflict.
// QueryWorkflows применяет поиск и сортировку до лимита.
type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow) error
	GetWorkflowByID(ctx context.Context, id string) (*domain.ApprovalWorkflow, error)
	UpdateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow, expectedVersion int64) error
	QueryWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error)
}

type CheckRepository interface {
	CreateCheck(ctx context.Context, c *domain.ComplianceCheck) error
	GetCheck(ctx context.Context, id string) (*domain.ComplianceCheck, error)
	UpdateCheck(ctx context.Context, c *domain.ComplianceCheck) error
	ListChecks(ctx context.Context, entityID string) ([]*domain.ComplianceCheck, error)
}

type EntityRepository interface {
	UpsertInvestor(ctx context.Context, inv *domain.Investor) error
	UpsertIssuer(ctx context.Context, iss *domain.Issuer) error
	ListInvestors(ctx context.Context) ([]*domain.Investor, error)
	ListIssuers(ctx context.Context) ([]*domain.Issuer, error)
}

type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type StatsRepository interface {
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

type AuditRepository interface {
	audit.StorageInterface
	FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error)
}
