package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository/memory"
	"github.com/xela07ax/compliance-console/internal/testutil/auditmock"
	"github.com/xela07ax/compliance-console/internal/testutil/workflowmock"
	"go.uber.org/zap"
)

func testRoster() map[string][]infra.RosterEntry {
	// ключи в нижнем регистре, как их отдает viper
	return map[string][]infra.RosterEntry{
		"l1":        {{UserID: "off-1", Role: "compliance_officer"}, {UserID: "off-2", Role: "compliance_officer"}},
		"l2":        {{UserID: "mgr-1", Role: "manager"}},
		"executive": {{UserID: "exec-1", Role: "executive"}},
	}
}

func newWorkflowService(t *testing.T) (*ApprovalWorkflowService, *memory.Store, *auditmock.Recorder) {
	t.Helper()
	store := memory.NewStore()
	rec := &auditmock.Recorder{}
	svc := NewApprovalWorkflowService(store, testRoster(), rec, nil, nil, zap.NewNop())
	return svc, store, rec
}

func createHigh(t *testing.T, svc *ApprovalWorkflowService) *domain.ApprovalWorkflow {
	t.Helper()
	w, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
		EntityID: "inv-1", EntityType: domain.EntityInvestor, EntityName: "Acme", RiskLevel: domain.RiskHigh,
	}, "creator")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	return w
}

func TestCreateWorkflow_LevelsByRisk(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	tests := []struct {
		risk          domain.RiskLevel
		wantLevels    []domain.ApprovalLevel
		wantApprovers int
	}{
		{domain.RiskLow, []domain.ApprovalLevel{domain.LevelL1}, 2},
		{domain.RiskMedium, []domain.ApprovalLevel{domain.LevelL1, domain.LevelL2}, 3},
		{domain.RiskHigh, []domain.ApprovalLevel{domain.LevelL1, domain.LevelL2, domain.LevelExecutive}, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.risk), func(t *testing.T) {
			w, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{
				EntityID: "e", EntityType: domain.EntityIssuer, RiskLevel: tt.risk,
			}, "creator")
			if err != nil {
				t.Fatalf("CreateWorkflow: %v", err)
			}
			if !reflect.DeepEqual(w.RequiredLevels, tt.wantLevels) {
				t.Fatalf("levels = %v, want %v", w.RequiredLevels, tt.wantLevels)
			}
			if w.CurrentLevel != tt.wantLevels[0] || w.Status != domain.WorkflowPending {
				t.Fatalf("current=%s status=%s", w.CurrentLevel, w.Status)
			}
			if len(w.Approvers) != tt.wantApprovers {
				t.Fatalf("approvers = %d, want %d", len(w.Approvers), tt.wantApprovers)
			}
			for _, a := range w.Approvers {
				if a.Status != domain.ApproverPending {
					t.Fatalf("approver %s starts %s", a.UserID, a.Status)
				}
			}
		})
	}
}

func TestCreateWorkflow_Validation(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{EntityType: "fund", RiskLevel: "EXTREME"}, "u")

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Violations) != 3 {
		t.Fatalf("violations = %+v, want 3", vErr.Violations)
	}

	// Ступень без ревьюеров
	empty := NewApprovalWorkflowService(memory.NewStore(), map[string][]infra.RosterEntry{"L1": {{UserID: "a"}}}, &auditmock.Recorder{}, nil, nil, zap.NewNop())
	_, err = empty.CreateWorkflow(context.Background(), CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskMedium}, "u")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing L2 roster, got %v", err)
	}
}

func TestWorkflow_HighRiskScenario(t *testing.T) {
	svc, _, rec := newWorkflowService(t)
	ctx := context.Background()
	w := createHigh(t, svc)

	// первый одобривший на L1 не закрывает ступень
	w, err := svc.ApproveWorkflow(ctx, w.ID, "off-1", nil)
	if err != nil {
		t.Fatalf("approve off-1: %v", err)
	}
	if w.CurrentLevel != domain.LevelL1 || w.Status != domain.WorkflowPending {
		t.Fatalf("after first L1 approval: level=%s status=%s", w.CurrentLevel, w.Status)
	}

	comment := "docs verified"
	w, err = svc.ApproveWorkflow(ctx, w.ID, "off-2", &comment)
	if err != nil {
		t.Fatalf("approve off-2: %v", err)
	}
	if w.CurrentLevel != domain.LevelL2 || w.IsTerminal() {
		t.Fatalf("after L1 unanimous: level=%s status=%s", w.CurrentLevel, w.Status)
	}

	w, err = svc.RejectWorkflow(ctx, w.ID, "mgr-1", "adverse media")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if w.Status != domain.WorkflowRejected || w.CompletedAt == nil {
		t.Fatalf("after reject: status=%s completed=%v", w.Status, w.CompletedAt)
	}

	// терминальное состояние
	if _, err := svc.ApproveWorkflow(ctx, w.ID, "mgr-1", nil); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("approve after reject: %v", err)
	}
	if _, err := svc.EscalateWorkflow(ctx, w.ID, "mgr-1", "late"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("escalate after reject: %v", err)
	}

	want := []string{
		audit.ActionWorkflowCreated, audit.ActionWorkflowApproved, audit.ActionWorkflowApproved,
		audit.ActionWorkflowRejected, audit.ActionWorkflowApproved, audit.ActionWorkflowEscalated,
	}
	if got := rec.Actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("audit actions = %v, want %v", got, want)
	}
	if ev := rec.Events()[4]; ev.Status != "FAILED" || ev.Error == "" {
		t.Fatalf("failed transition must be audited as FAILED: %+v", ev)
	}
}

func TestWorkflow_FullApproval(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	ctx := context.Background()
	w, _ := svc.CreateWorkflow(ctx, CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskMedium}, "c")

	for _, u := range []string{"off-1", "off-2", "mgr-1"} {
		var err error
		if w, err = svc.ApproveWorkflow(ctx, w.ID, u, nil); err != nil {
			t.Fatalf("approve %s: %v", u, err)
		}
	}
	if w.Status != domain.WorkflowApproved || w.CompletedAt == nil {
		t.Fatalf("status=%s completed=%v", w.Status, w.CompletedAt)
	}

	// APPROVED — конечный статус
	if _, err := svc.RejectWorkflow(ctx, w.ID, "mgr-1", "changed my mind"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reject after approval: %v", err)
	}
	if _, err := svc.EscalateWorkflow(ctx, w.ID, "off-1", "urgent"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("escalate after approval: %v", err)
	}
}

func TestCreateWorkflow_DuplicateRosterEntryIsAssignedOnce(t *testing.T) {
	roster := map[string][]infra.RosterEntry{
		"l1": {{UserID: "off-1", Role: "compliance_officer"}, {UserID: "off-1", Role: "compliance_officer"}},
	}
	svc := NewApprovalWorkflowService(memory.NewStore(), roster, &auditmock.Recorder{}, nil, nil, zap.NewNop())
	ctx := context.Background()

	w, err := svc.CreateWorkflow(ctx, CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskLow}, "c")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if len(w.Approvers) != 1 {
		t.Fatalf("approvers = %d, want 1", len(w.Approvers))
	}

	w, err = svc.ApproveWorkflow(ctx, w.ID, "off-1", nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if w.Status != domain.WorkflowApproved {
		t.Fatalf("status = %s, want APPROVED", w.Status)
	}
}

func TestWorkflow_NotAuthorizedLeavesWorkflowUnchanged(t *testing.T) {
	svc, store, _ := newWorkflowService(t)
	ctx := context.Background()
	w := createHigh(t, svc)

	// mgr-1 назначен, но на L2, а текущая ступень L1
	for _, user := range []string{"stranger", "mgr-1"} {
		if _, err := svc.ApproveWorkflow(ctx, w.ID, user, nil); !errors.Is(err, domain.ErrNotAuthorized) {
			t.Fatalf("approve by %s: %v", user, err)
		}
	}

	got, _ := store.GetWorkflowByID(ctx, w.ID)
	if !reflect.DeepEqual(got, w) {
		t.Fatalf("workflow changed after unauthorized calls\n got: %+v\nwant: %+v", got, w)
	}
}

func TestWorkflow_EscalateJumpsToLastLevel(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	ctx := context.Background()
	w := createHigh(t, svc)

	w, err := svc.EscalateWorkflow(ctx, w.ID, "off-1", "urgent")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if w.Status != domain.WorkflowEscalated || w.CurrentLevel != domain.LevelExecutive {
		t.Fatalf("status=%s level=%s", w.Status, w.CurrentLevel)
	}
	if w.EscalationReason == nil || *w.EscalationReason != "urgent" || w.EscalatedBy == nil || *w.EscalatedBy != "off-1" {
		t.Fatalf("escalation fields not recorded: %+v", w)
	}
	// запись эскалирующего не тронута
	if a := w.Approvers[w.ApproverAt("off-1", domain.LevelL1)]; a.Status != domain.ApproverPending {
		t.Fatalf("escalating approver status = %s", a.Status)
	}

	// повторная эскалация недопустима, решение executive — допустимо
	if _, err := svc.EscalateWorkflow(ctx, w.ID, "exec-1", "again"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second escalate: %v", err)
	}
	w, err = svc.ApproveWorkflow(ctx, w.ID, "exec-1", nil)
	if err != nil || w.Status != domain.WorkflowApproved {
		t.Fatalf("executive approve: %v, status=%s", err, w.Status)
	}
}

func TestWorkflow_NotFound(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	if _, err := svc.ApproveWorkflow(context.Background(), "missing", "off-1", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkflow_ConflictIsReturned(t *testing.T) {
	now := time.Now()
	base := &domain.ApprovalWorkflow{
		ID: "wf-1", Status: domain.WorkflowPending, RiskLevel: domain.RiskLow,
		RequiredLevels: []domain.ApprovalLevel{domain.LevelL1}, CurrentLevel: domain.LevelL1,
		Approvers: []domain.Approver{{UserID: "off-1", Level: domain.LevelL1, Status: domain.ApproverPending}},
		Version:   3, CreatedAt: now, UpdatedAt: now,
	}
	var gotVersion int64
	repo := &workflowmock.Repo{
		GetWorkflowByIDFn: func(context.Context, string) (*domain.ApprovalWorkflow, error) { return base.Clone(), nil },
		UpdateWorkflowFn: func(_ context.Context, _ *domain.ApprovalWorkflow, v int64) error {
			gotVersion = v
			return domain.ErrConflict
		},
	}
	rec := &auditmock.Recorder{}
	svc := NewApprovalWorkflowService(repo, testRoster(), rec, nil, nil, zap.NewNop())

	if _, err := svc.ApproveWorkflow(context.Background(), "wf-1", "off-1", nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if gotVersion != 3 {
		t.Fatalf("update conditioned on version %d, want 3", gotVersion)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("lost write must not be audited as success: %v", rec.Actions())
	}
}

func TestGetWorkflowsForApprover(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	ctx := context.Background()

	a := createHigh(t, svc)
	b := createHigh(t, svc)
	c := createHigh(t, svc)
	_, _ = svc.ApproveWorkflow(ctx, b.ID, "off-1", nil) // off-1 уже решил по b
	_, _ = svc.RejectWorkflow(ctx, c.ID, "off-2", "no") // c закрыт

	got, err := svc.GetWorkflowsForApprover(ctx, "off-1")
	if err != nil {
		t.Fatalf("GetWorkflowsForApprover: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("off-1 queue = %v", ids(got))
	}

	// mgr-1 назначен на L2, но ни один workflow туда не дошел
	got, _ = svc.GetWorkflowsForApprover(ctx, "mgr-1")
	if len(got) != 0 {
		t.Fatalf("mgr-1 queue = %v", ids(got))
	}

	// после эскалации очередь executive
	_, _ = svc.EscalateWorkflow(ctx, a.ID, "off-2", "urgent")
	got, _ = svc.GetWorkflowsForApprover(ctx, "exec-1")
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("exec-1 queue = %v", ids(got))
	}
}

func TestListWorkflows_FilterAndSort(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	names := []string{"Charlie Fund", "alpha capital", "Bravo Holdings"}
	for _, n := range names {
		_, _ = svc.CreateWorkflow(ctx, CreateWorkflowRequest{EntityID: n, EntityType: domain.EntityInvestor, EntityName: n, RiskLevel: domain.RiskLow}, "c")
	}

	got, _ := svc.ListWorkflows(ctx, domain.WorkflowFilter{SortKey: "entity_name", SortDir: domain.SortAsc})
	want := []string{"alpha capital", "Bravo Holdings", "Charlie Fund"}
	for i, w := range got {
		if w.EntityName != want[i] {
			t.Fatalf("pos %d = %s, want %s", i, w.EntityName, want[i])
		}
	}

	got, _ = svc.ListWorkflows(ctx, domain.WorkflowFilter{Search: "FUND"})
	if len(got) != 1 || got[0].EntityName != "Charlie Fund" {
		t.Fatalf("search = %v", ids(got))
	}

	// по умолчанию — свежие сверху
	got, _ = svc.ListWorkflows(ctx, domain.WorkflowFilter{})
	if got[0].EntityName != "Bravo Holdings" {
		t.Fatalf("default order starts with %s", got[0].EntityName)
	}
}

func TestProcessBatch_PartialFailure(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	ctx := context.Background()

	var wfIDs []string
	for i := 0; i < 3; i++ {
		w, _ := svc.CreateWorkflow(ctx, CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskLow}, "c")
		wfIDs = append(wfIDs, w.ID)
	}
	// второй элемент уже отклонен, а "ghost" не существует
	_, _ = svc.RejectWorkflow(ctx, wfIDs[1], "off-2", "no")
	batch := []string{wfIDs[0], wfIDs[1], "ghost", wfIDs[2]}

	res, err := svc.ProcessBatch(ctx, BatchRequest{IDs: batch, Action: ActionApprove}, "off-1")
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if !reflect.DeepEqual(res.Successful, []string{wfIDs[0], wfIDs[2]}) {
		t.Fatalf("successful = %v", res.Successful)
	}
	if len(res.Failed) != 2 || res.Failed[0].ID != wfIDs[1] || res.Failed[1].ID != "ghost" {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestProcessBatch_Reject(t *testing.T) {
	svc, store, _ := newWorkflowService(t)
	ctx := context.Background()
	w := createHigh(t, svc)

	res, err := svc.ProcessBatch(ctx, BatchRequest{IDs: []string{w.ID}, Action: ActionReject, RejectionReason: "pep"}, "off-2")
	if err != nil || len(res.Successful) != 1 {
		t.Fatalf("ProcessBatch = %+v, %v", res, err)
	}
	got, _ := store.GetWorkflowByID(ctx, w.ID)
	a := got.Approvers[got.ApproverAt("off-2", domain.LevelL1)]
	if got.Status != domain.WorkflowRejected || a.Comments == nil || *a.Comments != "pep" {
		t.Fatalf("unexpected workflow after batch reject: %+v", got)
	}
}

func TestProcessBatch_UnknownAction(t *testing.T) {
	svc, _, _ := newWorkflowService(t)
	if _, err := svc.ProcessBatch(context.Background(), BatchRequest{IDs: []string{"a"}, Action: "escalate"}, "u"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestWorkflow_PublishesEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, infra.RedisChanWorkflowDecisions)
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	svc := NewApprovalWorkflowService(memory.NewStore(), testRoster(), &auditmock.Recorder{}, rdb, nil, zap.NewNop())
	w, _ := svc.CreateWorkflow(ctx, CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskLow}, "c")
	_, _ = svc.EscalateWorkflow(ctx, w.ID, "off-1", "urgent")

	for _, wantAction := range []string{"created", "escalated"} {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		var ev domain.WorkflowEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.WorkflowID != w.ID || ev.Action != wantAction {
			t.Fatalf("event = %+v, want action %s", ev, wantAction)
		}
	}
}

func TestWorkflow_PublishFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	svc := NewApprovalWorkflowService(memory.NewStore(), testRoster(), &auditmock.Recorder{}, rdb, nil, zap.NewNop())
	if _, err := svc.CreateWorkflow(context.Background(), CreateWorkflowRequest{EntityID: "e", EntityType: domain.EntityInvestor, RiskLevel: domain.RiskLow}, "c"); err != nil {
		t.Fatalf("redis outage must not fail the transition: %v", err)
	}
}

func ids(ws []*domain.ApprovalWorkflow) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID + "/" + w.EntityName
	}
	return out
}
