package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository"
	"go.uber.org/zap"
)

// RiskScorer — удаленная функция скоринга (providers.RiskScorer).
type RiskScorer interface {
	Name() string
	Score(ctx context.Context, in providers.RiskInput) (*providers.RiskScore, error)
}

// WorkflowCreator — то, что нужно риск-сервису от сервиса согласований.
type WorkflowCreator interface {
	CreateWorkflow(ctx context.Context, req CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)
}

type RiskAssessmentRequest struct {
	EntityID   string                 `json:"entity_id"`
	EntityType domain.EntityType      `json:"entity_type"`
	EntityName string                 `json:"entity_name,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// CreateWorkflow — сразу завести согласование с уровнем риска из оценки
	CreateWorkflow bool `json:"create_workflow,omitempty"`
}

type RiskAssessmentResult struct {
	Assessment *domain.RiskAssessment   `json:"assessment"`
	Workflow   *domain.ApprovalWorkflow `json:"workflow,omitempty"`
}

type RiskService struct {
	scorer    RiskScorer
	checks    repository.CheckRepository
	workflows WorkflowCreator
	auditor   audit.Auditor
	logger    *zap.Logger
	now       func() time.Time
}

func NewRiskService(scorer RiskScorer, checks repository.CheckRepository, workflows WorkflowCreator, auditor audit.Auditor, logger *zap.Logger) *RiskService {
	return &RiskService{
		scorer:    scorer,
		checks:    checks,
		workflows: workflows,
		auditor:   auditor,
		logger:    logger.Named("risk-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Assess — оценка риска сущности с сохранением ComplianceCheck{type: RISK}.
func (s *RiskService) Assess(ctx context.Context, req RiskAssessmentRequest, actor string) (*RiskAssessmentResult, error) {
	var violations []domain.FieldViolation
	if strings.TrimSpace(req.EntityID) == "" {
		violations = append(violations, domain.FieldViolation{Field: "entity_id", Message: "is required"})
	}
	if !req.EntityType.Valid() {
		violations = append(violations, domain.FieldViolation{Field: "entity_type", Message: "must be investor or issuer"})
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	score, err := s.scorer.Score(ctx, providers.RiskInput{
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Attributes: req.Attributes,
	})
	if err != nil {
		s.logger.Error("risk scoring failed", zap.String("entity_id", req.EntityID), zap.Error(err))
		return nil, fmt.Errorf("risk: score: %w", err)
	}

	// HIGH уходит на ручной разбор, остальное — PASS
	result := domain.ResultPass
	if score.Level == domain.RiskHigh {
		result = domain.ResultReviewRequired
	}
	details, err := providers.NormalizeDetails(score.Details)
	if err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	now := s.now()
	check := &domain.ComplianceCheck{
		ID:        uuid.NewString(),
		EntityID:  req.EntityID,
		Type:      domain.CheckRisk,
		Provider:  s.scorer.Name(),
		CreatedAt: now,
	}
	check.Complete(domain.VerificationCompleted, result, details, now)
	if err := s.checks.CreateCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("risk: save check: %w", err)
	}

	out := &RiskAssessmentResult{Assessment: &domain.RiskAssessment{
		EntityID: req.EntityID,
		Score:    score.Score,
		Level:    score.Level,
		Factors:  score.Factors,
		CheckID:  check.ID,
	}}

	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     audit.ActionRiskAssessed,
		EntityType: string(req.EntityType),
		EntityID:   req.EntityID,
		Details: map[string]interface{}{
			"score":    score.Score,
			"level":    string(score.Level),
			"check_id": check.ID,
		},
	})

	if !req.CreateWorkflow {
		return out, nil
	}
	w, err := s.CreateWorkflowFromAssessment(ctx, out.Assessment, req.EntityType, req.EntityName, actor)
	if err != nil {
		return nil, err
	}
	out.Workflow = w
	return out, nil
}

// CreateWorkflowFromAssessment заводит согласование с уровнем риска из оценки.
func (s *RiskService) CreateWorkflowFromAssessment(ctx context.Context, a *domain.RiskAssessment, entityType domain.EntityType, entityName, actor string) (*domain.ApprovalWorkflow, error) {
	w, err := s.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{
		EntityID:   a.EntityID,
		EntityType: entityType,
		EntityName: entityName,
		RiskLevel:  a.Level,
	}, actor)
	if err != nil {
		return nil, fmt.Errorf("risk: create workflow: %w", err)
	}
	return w, nil
}
