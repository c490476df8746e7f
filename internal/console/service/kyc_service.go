package service

/*
Файл kyc_service.go — тонкая обертка над провайдерами верификации личности.
Сервис только заводит ComplianceCheck и опрашивает провайдера; нормализация статусов
и запись результата живут в адаптере (providers.VerificationProvider.StoreResult).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository"
	"github.com/xela07ax/compliance-console/internal/validation"
	"go.uber.org/zap"
)

// VerificationProviders — источник адаптеров KYC (providers.Registry).
type VerificationProviders interface {
	Verification(name string) (providers.VerificationProvider, error)
}

type StartVerificationRequest struct {
	EntityID   string              `json:"entity_id" validate:"required"`
	Person     domain.PersonalData `json:"person"`
	Provider   string              `json:"provider,omitempty"`
	Background bool                `json:"background,omitempty"`
}

type VerificationStarted struct {
	Check        *domain.ComplianceCheck    `json:"check"`
	Applicant    *domain.Applicant          `json:"applicant"`
	Verification *domain.VerificationHandle `json:"verification"`
}

type KYCService struct {
	providers VerificationProviders
	checks    repository.CheckRepository
	auditor   audit.Auditor
	validate  *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

func NewKYCService(p VerificationProviders, checks repository.CheckRepository, auditor audit.Auditor, logger *zap.Logger) *KYCService {
	return &KYCService{
		providers: p,
		checks:    checks,
		auditor:   auditor,
		validate:  validation.New(),
		logger:    logger.Named("kyc-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartVerification заводит заявителя у провайдера, запускает проверку
// и сохраняет ComplianceCheck{type: KYC, status: PENDING}.
func (s *KYCService) StartVerification(ctx context.Context, req StartVerificationRequest, actor string) (*VerificationStarted, error) {
	// 1. Валидация
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	provider, err := s.providers.Verification(req.Provider)
	if err != nil {
		return nil, err
	}

	// 2. Провайдер
	applicant, err := provider.CreateApplicant(ctx, req.Person)
	if err != nil {
		s.logger.Error("create applicant failed", zap.String("provider", provider.Name()), zap.String("entity_id", req.EntityID), zap.Error(err))
		return nil, fmt.Errorf("kyc: create applicant: %w", err)
	}
	handle, err := provider.StartVerification(ctx, applicant.ID, req.Background)
	if err != nil {
		s.logger.Error("start verification failed", zap.String("provider", provider.Name()), zap.String("applicant_id", applicant.ID), zap.Error(err))
		return nil, fmt.Errorf("kyc: start verification: %w", err)
	}

	// 3. Запись проверки
	check := &domain.ComplianceCheck{
		ID:         uuid.NewString(),
		EntityID:   req.EntityID,
		Type:       domain.CheckKYC,
		Provider:   provider.Name(),
		ExternalID: handle.ID,
		Status:     domain.VerificationPending,
		CreatedAt:  s.now(),
	}
	if err := s.checks.CreateCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("kyc: save check: %w", err)
	}

	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     audit.ActionKYCStarted,
		EntityType: "check",
		EntityID:   check.ID,
		Details: map[string]interface{}{
			"entity_id":       req.EntityID,
			"provider":        provider.Name(),
			"verification_id": handle.ID,
		},
	})
	s.logger.Info("verification started",
		zap.String("check_id", check.ID),
		zap.String("entity_id", req.EntityID),
		zap.String("provider", provider.Name()))

	return &VerificationStarted{Check: check, Applicant: applicant, Verification: handle}, nil
}

// RefreshStatus опрашивает провайдера и обновляет запись проверки.
// Завершенная проверка не опрашивается повторно.
func (s *KYCService) RefreshStatus(ctx context.Context, checkID, actor string) (*domain.ComplianceCheck, error) {
	check, err := s.checks.GetCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check.Type != domain.CheckKYC {
		return nil, fmt.Errorf("%w: check %s is %s, not KYC", domain.ErrValidation, checkID, check.Type)
	}
	if check.CompletedAt != nil {
		return check, nil
	}

	provider, err := s.providers.Verification(check.Provider)
	if err != nil {
		return nil, err
	}
	state, err := provider.GetStatus(ctx, check.ExternalID)
	if err != nil {
		s.logger.Warn("status poll failed", zap.String("check_id", checkID), zap.String("provider", provider.Name()), zap.Error(err))
		return nil, fmt.Errorf("kyc: get status: %w", err)
	}
	if err := provider.StoreResult(ctx, checkID, state); err != nil {
		return nil, fmt.Errorf("kyc: store result: %w", err)
	}

	updated, err := s.checks.GetCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{"status": string(updated.Status)}
	if updated.Result != nil {
		details["result"] = string(*updated.Result)
	}
	s.auditor.Log(audit.AuditEvent{
		TraceID: traceID(ctx), Actor: actor, Action: audit.ActionKYCRefreshed,
		EntityType: "check", EntityID: checkID, Details: details,
	})
	return updated, nil
}

func (s *KYCService) GetCheck(ctx context.Context, checkID string) (*domain.ComplianceCheck, error) {
	return s.checks.GetCheck(ctx, checkID)
}
