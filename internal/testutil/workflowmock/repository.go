package workflowmock

import (
	"context"

	"github.com/xela07ax/compliance-console/internal/domain"
)

// Repo is a function-backed mock that satisfies repository.WorkflowRepository.
type Repo struct {
	CreateWorkflowFn  func(ctx context.Context, w *domain.ApprovalWorkflow) error
	GetWorkflowByIDFn func(ctx context.Context, id string) (*domain.ApprovalWorkflow, error)
	UpdateWorkflowFn  func(ctx context.Context, w *domain.ApprovalWorkflow, expectedVersion int64) error
	QueryWorkflowsFn  func(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error)
}

func (m *Repo) CreateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow) error {
	if m.CreateWorkflowFn != nil {
		return m.CreateWorkflowFn(ctx, w)
	}
	return nil
}

func (m *Repo) GetWorkflowByID(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	if m.GetWorkflowByIDFn != nil {
		return m.GetWorkflowByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) UpdateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow, expectedVersion int64) error {
	if m.UpdateWorkflowFn != nil {
		return m.UpdateWorkflowFn(ctx, w, expectedVersion)
	}
	return nil
}

func (m *Repo) QueryWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	if m.QueryWorkflowsFn != nil {
		return m.QueryWorkflowsFn(ctx, f)
	}
	return []*domain.ApprovalWorkflow{}, nil
}
