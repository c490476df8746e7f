package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/bulkupload"
	"github.com/xela07ax/compliance-console/internal/console/handler"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository/memory"
	"github.com/xela07ax/compliance-console/internal/testutil/auditmock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// newTestServer собирает консоль целиком поверх хранилища в памяти
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa: %v", err)
	}

	store := memory.NewStore()
	users := []struct {
		id, name string
		scopes   map[string]bool
	}{
		{"compliance-officer-1", "alice", map[string]bool{auth.ScopeWorkflowsDecide: true}},
		{"viewer-1", "victor", map[string]bool{}},
		{"admin-1", "root", map[string]bool{auth.ScopeAdmin: true}},
	}
	for _, u := range users {
		hash, err := service.HashPassword("pw-"+u.name, bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		store.SaveUser(&domain.User{ID: u.id, Username: u.name, PasswordHash: hash, Role: "COMPLIANCE_OFFICER", Scopes: u.scopes})
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	recorder := &auditmock.Recorder{}
	reg, err := providers.NewRegistry(infra.ProvidersConfig{}, providers.Deps{Checks: store, Logger: logger})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	workflows := service.NewApprovalWorkflowService(store, infra.DefaultRoster(), recorder, rdb, nil, logger)
	exporter := service.NewExportService(store, store, recorder)

	srv := NewConsoleServer(infra.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}}, logger, auth.NewBaseValidator(&key.PublicKey), Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(store, key, time.Hour, recorder, logger), logger),
		Dashboard: handler.NewDashboardHandler(service.NewDashboardService(store, rdb, time.Minute, logger), logger),
		Workflows: handler.NewWorkflowHandler(workflows, logger),
		KYC:       handler.NewKYCHandler(service.NewKYCService(reg, store, recorder, logger), logger),
		AML:       handler.NewAMLHandler(service.NewAMLService(reg, store, rdb, recorder, logger), logger),
		Risk:      handler.NewRiskHandler(service.NewRiskService(reg.Risk(), store, workflows, recorder, logger), logger),
		Uploads:   handler.NewUploadHandler(bulkupload.NewService(store, rdb, recorder, nil, logger), 1, logger),
		Audit:     handler.NewAuditHandler(service.NewAuditService(store), exporter, logger),
		Entities:  handler.NewEntityHandler(exporter, logger),
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	body := `{"username":"` + username + `","password":"pw-` + username + `"}`
	resp, err := http.Post(ts.URL+"/auth/token", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var tok domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.AccessToken
}

func call(t *testing.T, ts *httptest.Server, method, path, token, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestConsoleServer_PublicAndProtected(t *testing.T) {
	ts := newTestServer(t)

	if code := call(t, ts, http.MethodGet, "/health", "", "", nil); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if code := call(t, ts, http.MethodGet, "/v1/workflows", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", code)
	}
	if code := call(t, ts, http.MethodGet, "/v1/workflows", "garbage", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", code)
	}
	if code := call(t, ts, http.MethodPost, "/auth/token", "", `{"username":"alice","password":"wrong"}`, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong password = %d, want 401", code)
	}
}

func TestConsoleServer_ScopesGuardRoutes(t *testing.T) {
	ts := newTestServer(t)
	viewer := login(t, ts, "victor")
	officer := login(t, ts, "alice")

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		body   string
		want   int
	}{
		{"viewer reads workflows", viewer, http.MethodGet, "/v1/workflows", "", http.StatusOK},
		{"viewer reads dashboard", viewer, http.MethodGet, "/api/v1/dashboard/stats", "", http.StatusOK},
		{"viewer cannot create", viewer, http.MethodPost, "/v1/workflows", `{}`, http.StatusForbidden},
		{"viewer cannot batch", viewer, http.MethodPost, "/v1/workflows/batch", `{}`, http.StatusForbidden},
		{"viewer cannot read audit", viewer, http.MethodGet, "/v1/audit", "", http.StatusForbidden},
		{"officer cannot upload", officer, http.MethodPost, "/v1/uploads/investors", "", http.StatusForbidden},
		{"officer cannot run aml", officer, http.MethodPost, "/v1/aml/checks", `{}`, http.StatusForbidden},
		{"officer validation error", officer, http.MethodPost, "/v1/workflows", `{}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := call(t, ts, tt.method, tt.path, tt.token, tt.body, nil); code != tt.want {
				t.Fatalf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestConsoleServer_MediumRiskWorkflowEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	admin := login(t, ts, "root")

	var wf domain.ApprovalWorkflow
	code := call(t, ts, http.MethodPost, "/v1/workflows", admin,
		`{"entity_id":"inv-77","entity_type":"investor","entity_name":"Acme","risk_level":"MEDIUM"}`, &wf)
	if code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}

	// admin не числится в ростере — право есть, а ревьюером он не является
	if code := call(t, ts, http.MethodPost, "/v1/workflows/"+wf.ID+"/approve", admin, "", nil); code != http.StatusForbidden {
		t.Fatalf("approve by non-approver = %d, want 403", code)
	}

	officer := login(t, ts, "alice")
	var after domain.ApprovalWorkflow
	if code := call(t, ts, http.MethodPost, "/v1/workflows/"+wf.ID+"/approve", officer, `{"comment":"docs ok"}`, &after); code != http.StatusOK {
		t.Fatalf("L1 approve = %d", code)
	}
	// на L1 два офицера: ступень закроется только вторым одобрением
	if after.Status != domain.WorkflowPending || after.CurrentLevel != domain.LevelL1 {
		t.Fatalf("after first L1 approval: status=%s level=%s", after.Status, after.CurrentLevel)
	}
	if idx := after.ApproverAt("compliance-officer-1", domain.LevelL1); idx < 0 || after.Approvers[idx].Status != domain.ApproverApproved {
		t.Fatalf("approver record not updated: %+v", after.Approvers)
	}

	var mine []domain.ApprovalWorkflow
	if code := call(t, ts, http.MethodGet, "/v1/workflows/mine", officer, "", &mine); code != http.StatusOK {
		t.Fatalf("mine = %d", code)
	}
	if len(mine) != 1 || mine[0].ID != wf.ID {
		t.Fatalf("mine = %+v", mine)
	}

	if code := call(t, ts, http.MethodGet, "/v1/workflows/nope", officer, "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown workflow = %d, want 404", code)
	}
}

func TestConsoleServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
}
