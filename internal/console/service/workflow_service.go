package service

/*
Файл workflow_service.go — сервис многоуровневого согласования.

Каждый переход: чтение -> копия -> переход state machine на копии -> условная запись по version.
Проигравший параллельную запись получает ErrConflict, прочитанное значение не портится.
После успешной записи: событие аудита, сообщение в Redis, счетчик prometheus.
Ошибка публикации в Redis только логируется: запись в базе — источник правды.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository"
	"go.uber.org/zap"
)

const (
	ActionCreate   = "create"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionEscalate = "escalate"
)

type CreateWorkflowRequest struct {
	EntityID   string            `json:"entity_id"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityName string            `json:"entity_name,omitempty"`
	RiskLevel  domain.RiskLevel  `json:"risk_level"`
}

type BatchRequest struct {
	IDs             []string `json:"ids"`
	Action          string   `json:"action"` // approve | reject
	Comment         *string  `json:"comment,omitempty"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
}

type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BatchResult struct {
	Successful []string       `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
}

type ApprovalWorkflowService struct {
	repo    repository.WorkflowRepository
	roster  map[domain.ApprovalLevel][]domain.Approver
	auditor audit.Auditor
	rdb     *redis.Client
	metrics *infra.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewApprovalWorkflowService — rdb может быть nil (без публикации событий).
func NewApprovalWorkflowService(
	repo repository.WorkflowRepository,
	roster map[string][]infra.RosterEntry,
	auditor audit.Auditor,
	rdb *redis.Client,
	metrics *infra.Metrics,
	logger *zap.Logger,
) *ApprovalWorkflowService {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &ApprovalWorkflowService{
		repo:    repo,
		roster:  buildRoster(roster),
		auditor: auditor,
		rdb:     rdb,
		metrics: metrics,
		logger:  logger.Named("workflow-service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// buildRoster — viper приводит ключи map к нижнему регистру, уровни храним в верхнем.
// На ступени одна запись на userId: повторная осталась бы PENDING навсегда.
func buildRoster(cfg map[string][]infra.RosterEntry) map[domain.ApprovalLevel][]domain.Approver {
	roster := make(map[domain.ApprovalLevel][]domain.Approver, len(cfg))
	for level, entries := range cfg {
		lvl := domain.ApprovalLevel(strings.ToUpper(level))
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.UserID == "" || seen[e.UserID] {
				continue
			}
			seen[e.UserID] = true
			roster[lvl] = append(roster[lvl], domain.Approver{
				UserID: e.UserID,
				Level:  lvl,
				Role:   domain.ApproverRole(strings.ToUpper(e.Role)),
				Status: domain.ApproverPending,
			})
		}
	}
	return roster
}

// CreateWorkflow назначает ревьюеров на все обязательные ступени по уровню риска.
func (s *ApprovalWorkflowService) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
	// 1. Валидация входа
	var violations []domain.FieldViolation
	if strings.TrimSpace(req.EntityID) == "" {
		violations = append(violations, domain.FieldViolation{Field: "entity_id", Message: "is required"})
	}
	if !req.EntityType.Valid() {
		violations = append(violations, domain.FieldViolation{Field: "entity_type", Message: "must be investor or issuer"})
	}
	levels, err := domain.RequiredLevelsFor(req.RiskLevel)
	if err != nil {
		violations = append(violations, domain.FieldViolation{Field: "risk_level", Message: "must be LOW, MEDIUM or HIGH"})
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	// 2. Назначение ревьюеров: ступень без ревьюеров никогда не закроется
	approvers := make([]domain.Approver, 0)
	for _, level := range levels {
		assigned := s.roster[level]
		if len(assigned) == 0 {
			return nil, fmt.Errorf("%w: no approvers configured for level %s", domain.ErrValidation, level)
		}
		approvers = append(approvers, assigned...)
	}

	now := s.now()
	w := &domain.ApprovalWorkflow{
		ID:             uuid.NewString(),
		EntityID:       req.EntityID,
		EntityType:     req.EntityType,
		EntityName:     req.EntityName,
		Status:         domain.WorkflowPending,
		RiskLevel:      req.RiskLevel,
		RequiredLevels: levels,
		CurrentLevel:   levels[0],
		Approvers:      approvers,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// 3. Persistence
	if err := s.repo.CreateWorkflow(ctx, w); err != nil {
		s.metrics.WorkflowTransitions.WithLabelValues(ActionCreate, "error").Inc()
		s.logger.Error("failed to persist workflow", zap.String("entity_id", req.EntityID), zap.Error(err))
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.afterTransition(ctx, w, ActionCreate, audit.ActionWorkflowCreated, actor, map[string]interface{}{
		"risk_level":      string(w.RiskLevel),
		"required_levels": w.RequiredLevels,
	})
	return w, nil
}

func (s *ApprovalWorkflowService) ApproveWorkflow(ctx context.Context, id, userID string, comment *string) (*domain.ApprovalWorkflow, error) {
	return s.transition(ctx, id, userID, ActionApprove, audit.ActionWorkflowApproved,
		func(w *domain.ApprovalWorkflow, now time.Time) error { return w.Approve(userID, comment, now) },
		commentDetails(comment))
}

func (s *ApprovalWorkflowService) RejectWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
	return s.transition(ctx, id, userID, ActionReject, audit.ActionWorkflowRejected,
		func(w *domain.ApprovalWorkflow, now time.Time) error { return w.Reject(userID, reason, now) },
		map[string]interface{}{"reason": reason})
}

func (s *ApprovalWorkflowService) EscalateWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
	return s.transition(ctx, id, userID, ActionEscalate, audit.ActionWorkflowEscalated,
		func(w *domain.ApprovalWorkflow, now time.Time) error { return w.Escalate(userID, reason, now) },
		map[string]interface{}{"reason": reason})
}

// transition — общий путь approve/reject/escalate.
func (s *ApprovalWorkflowService) transition(
	ctx context.Context,
	id, userID, action, auditAction string,
	apply func(w *domain.ApprovalWorkflow, now time.Time) error,
	details map[string]interface{},
) (*domain.ApprovalWorkflow, error) {
	// 1. Чтение
	current, err := s.repo.GetWorkflowByID(ctx, id)
	if err != nil {
		s.metrics.WorkflowTransitions.WithLabelValues(action, resultLabel(err)).Inc()
		return nil, err
	}

	// 2. Переход на копии
	next := current.Clone()
	if err := apply(next, s.now()); err != nil {
		s.metrics.WorkflowTransitions.WithLabelValues(action, resultLabel(err)).Inc()
		s.auditor.Log(audit.AuditEvent{
			TraceID: traceID(ctx), Actor: userID, Action: auditAction,
			EntityType: "workflow", EntityID: id, Status: "FAILED", Error: err.Error(),
		})
		return nil, err
	}

	// 3. Условная запись
	if err := s.repo.UpdateWorkflow(ctx, next, current.Version); err != nil {
		s.metrics.WorkflowTransitions.WithLabelValues(action, resultLabel(err)).Inc()
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Warn("workflow modified concurrently", zap.String("workflow_id", id), zap.String("user_id", userID))
		} else {
			s.logger.Error("failed to persist workflow transition", zap.String("workflow_id", id), zap.Error(err))
		}
		return nil, err
	}

	if details == nil {
		details = map[string]interface{}{}
	}
	details["status"] = string(next.Status)
	details["current_level"] = string(next.CurrentLevel)
	s.afterTransition(ctx, next, action, auditAction, userID, details)
	return next, nil
}

// eventNames — действие -> имя события в канале
var eventNames = map[string]string{
	ActionCreate:   "created",
	ActionApprove:  "approved",
	ActionReject:   "rejected",
	ActionEscalate: "escalated",
}

// afterTransition — побочные эффекты успешного перехода.
func (s *ApprovalWorkflowService) afterTransition(ctx context.Context, w *domain.ApprovalWorkflow, action, auditAction, actor string, details map[string]interface{}) {
	s.metrics.WorkflowTransitions.WithLabelValues(action, "success").Inc()

	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     auditAction,
		EntityType: "workflow",
		EntityID:   w.ID,
		Details:    details,
	})

	s.logger.Info("workflow transition",
		zap.String("workflow_id", w.ID),
		zap.String("action", action),
		zap.String("status", string(w.Status)),
		zap.String("current_level", string(w.CurrentLevel)),
		zap.String("actor", actor))

	if s.rdb == nil {
		return
	}
	payload, _ := json.Marshal(domain.WorkflowEvent{
		WorkflowID:   w.ID,
		Action:       eventNames[action],
		Status:       w.Status,
		CurrentLevel: w.CurrentLevel,
		Actor:        actor,
		At:           w.UpdatedAt,
	})
	if err := s.rdb.Publish(ctx, infra.RedisChanWorkflowDecisions, payload).Err(); err != nil {
		s.logger.Warn("workflow event delivery failed",
			zap.String("workflow_id", w.ID),
			zap.String("channel", infra.RedisChanWorkflowDecisions),
			zap.Error(err))
	}
}

func (s *ApprovalWorkflowService) GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	return s.repo.GetWorkflowByID(ctx, id)
}

// ListWorkflows — фильтр, поиск и сортировка выполняются хранилищем до лимита.
func (s *ApprovalWorkflowService) ListWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	items, err := s.repo.QueryWorkflows(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return items, nil
}

// GetWorkflowsForApprover — очередь пользователя: его PENDING запись на текущей ступени.
func (s *ApprovalWorkflowService) GetWorkflowsForApprover(ctx context.Context, userID string) ([]*domain.ApprovalWorkflow, error) {
	items, err := s.repo.QueryWorkflows(ctx, domain.WorkflowFilter{WorkflowQuery: domain.WorkflowQuery{
		Statuses:   []domain.WorkflowStatus{domain.WorkflowPending, domain.WorkflowEscalated},
		ApproverID: userID,
	}})
	if err != nil {
		return nil, fmt.Errorf("workflows for approver: %w", err)
	}
	result := make([]*domain.ApprovalWorkflow, 0, len(items))
	for _, w := range items {
		if w.PendingFor(userID) {
			result = append(result, w)
		}
	}
	return result, nil
}

// ProcessBatch применяет действие к списку строго последовательно.
// Ошибка одного элемента попадает в Failed и не останавливает остальные.
func (s *ApprovalWorkflowService) ProcessBatch(ctx context.Context, req BatchRequest, userID string) (*BatchResult, error) {
	if req.Action != ActionApprove && req.Action != ActionReject {
		return nil, fmt.Errorf("%w: unknown batch action %q", domain.ErrValidation, req.Action)
	}

	res := &BatchResult{Successful: make([]string, 0, len(req.IDs)), Failed: make([]BatchFailure, 0)}
	for _, id := range req.IDs {
		var err error
		if req.Action == ActionApprove {
			_, err = s.ApproveWorkflow(ctx, id, userID, req.Comment)
		} else {
			_, err = s.RejectWorkflow(ctx, id, userID, req.RejectionReason)
		}

		if err != nil {
			s.metrics.BatchItems.WithLabelValues(req.Action, "failed").Inc()
			res.Failed = append(res.Failed, BatchFailure{ID: id, Error: err.Error()})
			continue
		}
		s.metrics.BatchItems.WithLabelValues(req.Action, "succeeded").Inc()
		res.Successful = append(res.Successful, id)
	}

	s.logger.Info("batch processed",
		zap.String("action", req.Action),
		zap.String("user_id", userID),
		zap.Int("successful", len(res.Successful)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func commentDetails(comment *string) map[string]interface{} {
	if comment == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"comment": *comment}
}

// resultLabel — метка исхода для счетчика переходов
func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
