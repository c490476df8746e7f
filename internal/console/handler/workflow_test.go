package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

type fakeWorkflows struct {
	CreateFn   func(ctx context.Context, req service.CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error)
	GetFn      func(ctx context.Context, id string) (*domain.ApprovalWorkflow, error)
	ListFn     func(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error)
	MineFn     func(ctx context.Context, userID string) ([]*domain.ApprovalWorkflow, error)
	ApproveFn  func(ctx context.Context, id, userID string, comment *string) (*domain.ApprovalWorkflow, error)
	RejectFn   func(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error)
	EscalateFn func(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error)
	BatchFn    func(ctx context.Context, req service.BatchRequest, userID string) (*service.BatchResult, error)
}

func (f *fakeWorkflows) CreateWorkflow(ctx context.Context, req service.CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
	return f.CreateFn(ctx, req, actor)
}
func (f *fakeWorkflows) GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	return f.GetFn(ctx, id)
}
func (f *fakeWorkflows) ListWorkflows(ctx context.Context, flt domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	return f.ListFn(ctx, flt)
}
func (f *fakeWorkflows) GetWorkflowsForApprover(ctx context.Context, userID string) ([]*domain.ApprovalWorkflow, error) {
	return f.MineFn(ctx, userID)
}
func (f *fakeWorkflows) ApproveWorkflow(ctx context.Context, id, userID string, comment *string) (*domain.ApprovalWorkflow, error) {
	return f.ApproveFn(ctx, id, userID, comment)
}
func (f *fakeWorkflows) RejectWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
	return f.RejectFn(ctx, id, userID, reason)
}
func (f *fakeWorkflows) EscalateWorkflow(ctx context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
	return f.EscalateFn(ctx, id, userID, reason)
}
func (f *fakeWorkflows) ProcessBatch(ctx context.Context, req service.BatchRequest, userID string) (*service.BatchResult, error) {
	return f.BatchFn(ctx, req, userID)
}

func workflowRouter(svc WorkflowService) http.Handler {
	h := NewWorkflowHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/v1/workflows", h.List)
	r.Post("/v1/workflows", h.Create)
	r.Get("/v1/workflows/mine", h.Mine)
	r.Post("/v1/workflows/batch", h.Batch)
	r.Get("/v1/workflows/{id}", h.Get)
	r.Post("/v1/workflows/{id}/approve", h.Approve)
	r.Post("/v1/workflows/{id}/reject", h.Reject)
	r.Post("/v1/workflows/{id}/escalate", h.Escalate)
	return r
}

// asUser — запрос с данными токена, как после auth middleware
func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), &domain.CustomClaims{UserID: userID, Role: "officer"}))
}

func TestWorkflowHandler_ListParsesFilter(t *testing.T) {
	var got domain.WorkflowFilter
	svc := &fakeWorkflows{ListFn: func(_ context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
		got = f
		return []*domain.ApprovalWorkflow{}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows?status=pending,%20escalated&entity_type=Investor&risk_level=high&q=acme&sort=risk_level&dir=ASC&limit=20", nil)
	rec := httptest.NewRecorder()
	workflowRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(got.Statuses) != 2 || got.Statuses[0] != domain.WorkflowPending || got.Statuses[1] != domain.WorkflowEscalated {
		t.Fatalf("statuses = %v", got.Statuses)
	}
	if got.EntityType != domain.EntityInvestor || got.RiskLevel != domain.RiskHigh {
		t.Fatalf("entity_type/risk_level = %q/%q", got.EntityType, got.RiskLevel)
	}
	if got.Search != "acme" || got.SortKey != "risk_level" || got.SortDir != domain.SortAsc || got.Limit != 20 {
		t.Fatalf("filter = %+v", got)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("body = %s, want []", rec.Body)
	}
}

func TestWorkflowHandler_ListBadLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	workflowRouter(&fakeWorkflows{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/workflows?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWorkflowHandler_DecisionsUseTokenUser(t *testing.T) {
	var calls []string
	wf := &domain.ApprovalWorkflow{ID: "wf-1", Status: domain.WorkflowInProgress}
	svc := &fakeWorkflows{
		ApproveFn: func(_ context.Context, id, userID string, comment *string) (*domain.ApprovalWorkflow, error) {
			c := "<nil>"
			if comment != nil {
				c = *comment
			}
			calls = append(calls, "approve:"+id+":"+userID+":"+c)
			return wf, nil
		},
		RejectFn: func(_ context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
			calls = append(calls, "reject:"+id+":"+userID+":"+reason)
			return wf, nil
		},
		EscalateFn: func(_ context.Context, id, userID, reason string) (*domain.ApprovalWorkflow, error) {
			calls = append(calls, "escalate:"+id+":"+userID+":"+reason)
			return wf, nil
		},
	}
	router := workflowRouter(svc)

	requests := []struct {
		path string
		body string
	}{
		{"/v1/workflows/wf-1/approve", ""},
		{"/v1/workflows/wf-1/approve", `{"comment":"looks fine"}`},
		{"/v1/workflows/wf-1/reject", `{"reason":"sanctions hit"}`},
		{"/v1/workflows/wf-1/escalate", `{"reason":"urgent"}`},
	}
	for _, rq := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, rq.path, strings.NewReader(rq.body)), "off-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body %s", rq.path, rec.Code, rec.Body)
		}
	}

	want := []string{
		"approve:wf-1:off-1:<nil>",
		"approve:wf-1:off-1:looks fine",
		"reject:wf-1:off-1:sanctions hit",
		"escalate:wf-1:off-1:urgent",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v\nwant %v", calls, want)
	}
}

func TestWorkflowHandler_DecisionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"not authorized", domain.ErrNotAuthorized, `{}`, http.StatusForbidden},
		{"terminal workflow", domain.ErrInvalidState, `{}`, http.StatusConflict},
		{"missing", domain.ErrNotFound, `{}`, http.StatusNotFound},
		{"broken json", nil, `{"comment":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeWorkflows{ApproveFn: func(context.Context, string, string, *string) (*domain.ApprovalWorkflow, error) {
				return nil, tt.err
			}}
			rec := httptest.NewRecorder()
			req := asUser(httptest.NewRequest(http.MethodPost, "/v1/workflows/wf-9/approve", strings.NewReader(tt.body)), "off-1")
			workflowRouter(svc).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWorkflowHandler_CreateAndMine(t *testing.T) {
	svc := &fakeWorkflows{
		CreateFn: func(_ context.Context, req service.CreateWorkflowRequest, actor string) (*domain.ApprovalWorkflow, error) {
			if actor != "mgr-1" || req.RiskLevel != domain.RiskMedium {
				t.Errorf("create got actor=%q req=%+v", actor, req)
			}
			return &domain.ApprovalWorkflow{ID: "wf-new", EntityID: req.EntityID, Status: domain.WorkflowPending}, nil
		},
		MineFn: func(_ context.Context, userID string) ([]*domain.ApprovalWorkflow, error) {
			return []*domain.ApprovalWorkflow{{ID: "wf-" + userID}}, nil
		},
	}
	router := workflowRouter(svc)

	rec := httptest.NewRecorder()
	body := `{"entity_id":"inv-1","entity_type":"investor","risk_level":"MEDIUM"}`
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/v1/workflows", strings.NewReader(body)), "mgr-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/v1/workflows/mine", nil), "mgr-1"))
	var items []domain.ApprovalWorkflow
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != "wf-mgr-1" {
		t.Fatalf("mine = %+v", items)
	}
}

func TestWorkflowHandler_BatchReturnsPartialResult(t *testing.T) {
	svc := &fakeWorkflows{BatchFn: func(_ context.Context, req service.BatchRequest, userID string) (*service.BatchResult, error) {
		return &service.BatchResult{
			Successful: []string{req.IDs[0]},
			Failed:     []service.BatchFailure{{ID: req.IDs[1], Error: "not authorized"}},
		}, nil
	}}

	rec := httptest.NewRecorder()
	body := `{"ids":["a","b"],"action":"approve"}`
	workflowRouter(svc).ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodPost, "/v1/workflows/batch", strings.NewReader(body)), "off-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res service.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Successful) != 1 || len(res.Failed) != 1 || res.Failed[0].ID != "b" {
		t.Fatalf("result = %+v", res)
	}
}
