package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository/memory"
	"github.com/xela07ax/compliance-console/internal/testutil/auditmock"
	"go.uber.org/zap"
)

// sequentialAML — провайдер без пакетного API
type sequentialAML struct {
	calls int
}

func (p *sequentialAML) Name() string { return "seq" }

func (p *sequentialAML) RunCheck(_ context.Context, pd domain.PersonalData, _ domain.AMLCheckType) (*domain.AMLResult, error) {
	p.calls++
	if pd.LastName == "Timeout" {
		return nil, &domain.ProviderError{Provider: "seq", Kind: domain.ProviderKindFetch, Cause: errors.New("timeout")}
	}
	return &domain.AMLResult{Result: domain.AMLNoMatch, Details: []byte(`{"hits":[]}`)}, nil
}

func (p *sequentialAML) RunBatch(context.Context, []domain.PersonalData, domain.AMLCheckType) (string, error) {
	return "", providers.ErrBatchUnsupported
}

func (p *sequentialAML) GetBatchResults(context.Context, string) ([]domain.AMLResult, bool, error) {
	return nil, false, providers.ErrBatchUnsupported
}

type amlProvidersFunc func(name string) (providers.AMLProvider, error)

func (f amlProvidersFunc) AML(name string) (providers.AMLProvider, error) { return f(name) }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAMLService_RunCheck(t *testing.T) {
	tests := []struct {
		lastName string
		want     domain.AMLMatch
		result   domain.CheckResult
	}{
		{"Clean", domain.AMLNoMatch, domain.ResultPass},
		{"Sanctioned", domain.AMLMatchFound, domain.ResultFail},
		{"Pepper", domain.AMLPossibleMatch, domain.ResultReviewRequired},
	}
	for _, tt := range tests {
		t.Run(tt.lastName, func(t *testing.T) {
			store := memory.NewStore()
			svc := NewAMLService(mockRegistry(t, store), store, nil, &auditmock.Recorder{}, zap.NewNop())

			out, err := svc.RunCheck(context.Background(), AMLCheckRequest{
				EntityID: "inv-1",
				Person:   domain.PersonalData{FirstName: "John", LastName: tt.lastName},
			}, "off-1")
			if err != nil {
				t.Fatalf("RunCheck: %v", err)
			}
			if out.Result.Result != tt.want {
				t.Fatalf("result = %s, want %s", out.Result.Result, tt.want)
			}
			stored, _ := store.GetCheck(context.Background(), out.Check.ID)
			if stored.Type != domain.CheckAML || stored.Status != domain.VerificationCompleted || *stored.Result != tt.result {
				t.Fatalf("stored check = %+v", stored)
			}
		})
	}
}

func TestAMLService_RunCheckRejectsUnknownType(t *testing.T) {
	store := memory.NewStore()
	svc := NewAMLService(mockRegistry(t, store), store, nil, &auditmock.Recorder{}, zap.NewNop())
	_, err := svc.RunCheck(context.Background(), AMLCheckRequest{
		EntityID: "e", Person: domain.PersonalData{FirstName: "A", LastName: "B"}, CheckType: "crypto",
	}, "u")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAMLService_NativeBatch(t *testing.T) {
	mr, rdb := newRedis(t)
	store := memory.NewStore()
	svc := NewAMLService(mockRegistry(t, store), store, rdb, &auditmock.Recorder{}, zap.NewNop())
	ctx := context.Background()

	batch, err := svc.RunBatch(ctx, AMLBatchRequest{Subjects: []AMLSubject{
		{EntityID: "inv-1", Person: domain.PersonalData{FirstName: "Ann", LastName: "Clean"}},
		{EntityID: "inv-2", Person: domain.PersonalData{FirstName: "Bob", LastName: "Blocked"}},
	}, CheckType: domain.AMLSanction}, "off-1")
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if batch.Status != domain.AMLBatchProcessing || batch.ExternalID == "" {
		t.Fatalf("native batch should be processing with external id: %+v", batch)
	}
	if !mr.Exists(infra.AMLBatchKey(batch.ID)) || mr.TTL(infra.AMLBatchKey(batch.ID)) <= 0 {
		t.Fatalf("batch state not stored with TTL")
	}

	got, err := svc.GetBatchResults(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatchResults: %v", err)
	}
	if got.Status != domain.AMLBatchCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Items[0].Result.Result != domain.AMLNoMatch || got.Items[1].Result.Result != domain.AMLMatchFound {
		t.Fatalf("items = %+v", got.Items)
	}
	checks, _ := store.ListChecks(ctx, "inv-2")
	if len(checks) != 1 || checks[0].ID != got.Items[1].CheckID {
		t.Fatalf("inv-2 checks = %+v", checks)
	}

	// повторное чтение не создает проверок заново
	_, _ = svc.GetBatchResults(ctx, batch.ID)
	checks, _ = store.ListChecks(ctx, "inv-2")
	if len(checks) != 1 {
		t.Fatalf("completed batch re-processed: %d checks", len(checks))
	}
}

func TestAMLService_BatchCompletedOnceUnderLock(t *testing.T) {
	mr, rdb := newRedis(t)
	store := memory.NewStore()
	svc := NewAMLService(mockRegistry(t, store), store, rdb, &auditmock.Recorder{}, zap.NewNop())
	ctx := context.Background()

	batch, err := svc.RunBatch(ctx, AMLBatchRequest{Subjects: []AMLSubject{
		{EntityID: "inv-1", Person: domain.PersonalData{FirstName: "Ann", LastName: "Clean"}},
	}, CheckType: domain.AMLSanction}, "off-1")
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	// другой опрос уже завершает пакет
	if err := mr.Set(infra.AMLBatchLockKey(batch.ID), "1"); err != nil {
		t.Fatalf("set lock: %v", err)
	}
	got, err := svc.GetBatchResults(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatchResults: %v", err)
	}
	if got.Status != domain.AMLBatchProcessing {
		t.Fatalf("status under foreign lock = %s, want processing", got.Status)
	}
	if checks, _ := store.ListChecks(ctx, "inv-1"); len(checks) != 0 {
		t.Fatalf("checks saved without the lock: %d", len(checks))
	}

	mr.Del(infra.AMLBatchLockKey(batch.ID))
	got, err = svc.GetBatchResults(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatchResults: %v", err)
	}
	if got.Status != domain.AMLBatchCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if checks, _ := store.ListChecks(ctx, "inv-1"); len(checks) != 1 {
		t.Fatalf("checks = %d, want 1", len(checks))
	}
	if mr.Exists(infra.AMLBatchLockKey(batch.ID)) {
		t.Fatalf("lock not released")
	}
}

func TestAMLService_SequentialBatch(t *testing.T) {
	_, rdb := newRedis(t)
	store := memory.NewStore()
	seq := &sequentialAML{}
	svc := NewAMLService(amlProvidersFunc(func(string) (providers.AMLProvider, error) { return seq, nil }), store, rdb, &auditmock.Recorder{}, zap.NewNop())

	batch, err := svc.RunBatch(context.Background(), AMLBatchRequest{Subjects: []AMLSubject{
		{EntityID: "a", Person: domain.PersonalData{FirstName: "A", LastName: "One"}},
		{EntityID: "b", Person: domain.PersonalData{FirstName: "B", LastName: "Timeout"}},
		{EntityID: "c", Person: domain.PersonalData{FirstName: "C", LastName: "Three"}},
	}}, "off-1")
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if batch.Status != domain.AMLBatchCompleted || seq.calls != 3 {
		t.Fatalf("status=%s calls=%d", batch.Status, seq.calls)
	}
	if batch.CheckType != domain.AMLFull {
		t.Fatalf("default check type = %s", batch.CheckType)
	}
	if batch.Items[1].Error == "" || batch.Items[1].CheckID != "" {
		t.Fatalf("failed item = %+v", batch.Items[1])
	}
	if batch.Items[0].CheckID == "" || batch.Items[2].CheckID == "" {
		t.Fatalf("successful items lack checks: %+v", batch.Items)
	}

	got, err := svc.GetBatchResults(context.Background(), batch.ID)
	if err != nil || got.Status != domain.AMLBatchCompleted || len(got.Items) != 3 {
		t.Fatalf("GetBatchResults = %+v, %v", got, err)
	}
}

func TestAMLService_BatchErrors(t *testing.T) {
	_, rdb := newRedis(t)
	store := memory.NewStore()
	svc := NewAMLService(mockRegistry(t, store), store, rdb, &auditmock.Recorder{}, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.GetBatchResults(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing batch: %v", err)
	}

	_, err := svc.RunBatch(ctx, AMLBatchRequest{Subjects: []AMLSubject{
		{Person: domain.PersonalData{FirstName: "A"}},
		{Person: domain.PersonalData{LastName: "B", DateOfBirth: "bad"}},
	}}, "u")
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %v", err)
	}

	if _, err := svc.RunBatch(ctx, AMLBatchRequest{}, "u"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestAMLService_TemplateRoundTrip(t *testing.T) {
	svc := NewAMLService(nil, nil, nil, &auditmock.Recorder{}, zap.NewNop())
	tpl := svc.BatchTemplate()
	if !strings.HasPrefix(string(tpl), "entity_id,first_name,last_name") {
		t.Fatalf("template header = %q", tpl)
	}

	subjects, err := ParseBatchCSV(strings.NewReader(string(tpl)))
	if err != nil {
		t.Fatalf("ParseBatchCSV: %v", err)
	}
	if len(subjects) != 1 || subjects[0].Person.LastName != "Doe" || subjects[0].EntityID != "inv-001" {
		t.Fatalf("subjects = %+v", subjects)
	}

	if _, err := ParseBatchCSV(strings.NewReader("name,email\nx,y\n")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing columns: %v", err)
	}
}

func TestParseBatchCSV_StripsBOM(t *testing.T) {
	subjects, err := ParseBatchCSV(strings.NewReader("\ufeffentity_id,first_name,last_name\ninv-7,Jane,Doe\n"))
	if err != nil {
		t.Fatalf("ParseBatchCSV: %v", err)
	}
	if len(subjects) != 1 || subjects[0].EntityID != "inv-7" || subjects[0].Person.FirstName != "Jane" {
		t.Fatalf("subjects = %+v", subjects)
	}
}
