package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

// WorkflowService — то, что вкладке согласований нужно от сервиса
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, req service.CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)
	GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error)
	ListWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error)
	GetWorkflowsForApprover(ctx context.Context, userID string) ([]*domain.ApprovalWorkflow, error)
	ApproveWorkflow(ctx context.Context, id, userID string, comment *string) (*domain.ApprovalWorkflow, error)
	RejectWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error)
	EscalateWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error)
	ProcessBatch(ctx context.Context, req service.BatchRequest, userID string) (*service.BatchResult, error)
}

type WorkflowHandler struct {
	service WorkflowService
	logger  *zap.Logger
}

func NewWorkflowHandler(s WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{service: s, logger: logger.Named("workflow-handler")}
}

// DecisionRequest — тело approve/reject/escalate
type DecisionRequest struct {
	Comment *string `json:"comment,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// List возвращает согласования с фильтром и сортировкой.
// GET /v1/workflows?status=PENDING,ESCALATED&entity_type=investor&risk_level=HIGH&q=acme&sort=risk_level&dir=asc
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.WorkflowFilter{
		WorkflowQuery: domain.WorkflowQuery{
			EntityType: domain.EntityType(strings.ToLower(q.Get("entity_type"))),
			EntityID:   q.Get("entity_id"),
			RiskLevel:  domain.RiskLevel(strings.ToUpper(q.Get("risk_level"))),
		},
		Search:  q.Get("q"),
		SortKey: q.Get("sort"),
		SortDir: domain.SortDir(strings.ToLower(q.Get("dir"))),
	}
	for _, s := range strings.Split(q.Get("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Statuses = append(f.Statuses, domain.WorkflowStatus(strings.ToUpper(s)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive number"})
			return
		}
		f.Limit = limit
	}

	items, err := h.service.ListWorkflows(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

// Mine — очередь текущего пользователя
func (h *WorkflowHandler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetWorkflowsForApprover(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWorkflowRequest
	if !decode(w, r, &req) {
		return
	}
	wf, err := h.service.CreateWorkflow(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, wf)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	wf, err := h.service.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

func (h *WorkflowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, id, user string, req DecisionRequest) (*domain.ApprovalWorkflow, error) {
		return h.service.ApproveWorkflow(ctx, id, user, req.Comment)
	})
}

func (h *WorkflowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, id, user string, req DecisionRequest) (*domain.ApprovalWorkflow, error) {
		return h.service.RejectWorkflow(ctx, id, user, req.Reason)
	})
}

func (h *WorkflowHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, id, user string, req DecisionRequest) (*domain.ApprovalWorkflow, error) {
		return h.service.EscalateWorkflow(ctx, id, user, req.Reason)
	})
}

func (h *WorkflowHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id, user string, req DecisionRequest) (*domain.ApprovalWorkflow, error),
) {
	var req DecisionRequest
	// Тело необязательно: approve без комментария
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	wf, err := fn(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, wf)
}

// Batch — пакетное решение: всегда 200, частичные отказы в теле ответа
func (h *WorkflowHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.ProcessBatch(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
