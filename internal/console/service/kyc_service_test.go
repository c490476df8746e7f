package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository/memory"
	"github.com/xela07ax/compliance-console/internal/testutil/auditmock"
	"go.uber.org/zap"
)

// mockRegistry — реестр без настроенных вендоров: все провайдеры падают на mock.
func mockRegistry(t *testing.T, store *memory.Store) *providers.Registry {
	t.Helper()
	reg, err := providers.NewRegistry(infra.ProvidersConfig{}, providers.Deps{Checks: store, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestKYCService_StartAndRefresh(t *testing.T) {
	tests := []struct {
		name       string
		lastName   string
		wantResult domain.CheckResult
	}{
		{"approved applicant", "Doe", domain.ResultPass},
		{"declined applicant", "Declined", domain.ResultFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			rec := &auditmock.Recorder{}
			svc := NewKYCService(mockRegistry(t, store), store, rec, zap.NewNop())
			ctx := context.Background()

			started, err := svc.StartVerification(ctx, StartVerificationRequest{
				EntityID: "inv-1",
				Person:   domain.PersonalData{FirstName: "Jane", LastName: tt.lastName, DateOfBirth: "1990-05-01"},
			}, "off-1")
			if err != nil {
				t.Fatalf("StartVerification: %v", err)
			}
			if started.Check.Status != domain.VerificationPending || started.Check.Type != domain.CheckKYC {
				t.Fatalf("new check = %+v", started.Check)
			}
			if started.Verification.RedirectURL == "" || started.Check.ExternalID != started.Verification.ID {
				t.Fatalf("handle not linked to check: %+v / %+v", started.Verification, started.Check)
			}

			check, err := svc.RefreshStatus(ctx, started.Check.ID, "off-1")
			if err != nil {
				t.Fatalf("RefreshStatus: %v", err)
			}
			if check.Status != domain.VerificationCompleted || check.Result == nil || *check.Result != tt.wantResult {
				t.Fatalf("refreshed check = %+v", check)
			}
			if check.CompletedAt == nil || len(check.Details) == 0 {
				t.Fatalf("completion not recorded: %+v", check)
			}

			want := []string{audit.ActionKYCStarted, audit.ActionKYCRefreshed}
			if got := rec.Actions(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
				t.Fatalf("audit = %v", got)
			}
		})
	}
}

func TestKYCService_Validation(t *testing.T) {
	store := memory.NewStore()
	svc := NewKYCService(mockRegistry(t, store), store, &auditmock.Recorder{}, zap.NewNop())

	_, err := svc.StartVerification(context.Background(), StartVerificationRequest{
		Person: domain.PersonalData{FirstName: "Jane", DateOfBirth: "01.05.1990"},
	}, "u")
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %v", err)
	}

	_, err = svc.StartVerification(context.Background(), StartVerificationRequest{
		EntityID: "e", Person: domain.PersonalData{FirstName: "A", LastName: "B"}, Provider: "idenfy",
	}, "u")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unconfigured provider: %v", err)
	}
}

func TestKYCService_RefreshRules(t *testing.T) {
	store := memory.NewStore()
	svc := NewKYCService(mockRegistry(t, store), store, &auditmock.Recorder{}, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.RefreshStatus(ctx, "missing", "u"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing check: %v", err)
	}

	_ = store.CreateCheck(ctx, &domain.ComplianceCheck{ID: "aml-1", Type: domain.CheckAML, Provider: "mock"})
	if _, err := svc.RefreshStatus(ctx, "aml-1", "u"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("non-KYC check: %v", err)
	}

	// завершенная проверка не опрашивается
	pass := domain.ResultPass
	done := &domain.ComplianceCheck{ID: "kyc-1", Type: domain.CheckKYC, Provider: "not-configured", Status: domain.VerificationCompleted, Result: &pass}
	done.CompletedAt = &done.CreatedAt
	_ = store.CreateCheck(ctx, done)
	got, err := svc.RefreshStatus(ctx, "kyc-1", "u")
	if err != nil || got.ID != "kyc-1" {
		t.Fatalf("completed check refresh = %v, %v", got, err)
	}
}
