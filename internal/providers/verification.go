package providers

/*
Файл verification.go — общий контракт провайдеров верификации личности.

Каждый адаптер говорит на словаре своего вендора и приводит статусы к общему
PENDING | IN_PROGRESS | COMPLETED | FAILED на своей границе.
Конкретный адаптер выбирается фабрикой по имени провайдера.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/repository"
)

type VerificationProvider interface {
	Name() string
	CreateApplicant(ctx context.Context, pd domain.PersonalData) (*domain.Applicant, error)
	StartVerification(ctx context.Context, applicantID string, background bool) (*domain.VerificationHandle, error)
	GetStatus(ctx context.Context, verificationID string) (*domain.VerificationState, error)
	// StoreResult фиксирует состояние проверки в записи ComplianceCheck
	StoreResult(ctx context.Context, checkID string, state *domain.VerificationState) error
}

// verificationBase — общая часть адаптеров: транспорт и запись результата.
type verificationBase struct {
	name   string
	caller Caller
	checks repository.CheckRepository
	now    func() time.Time
}

func (b *verificationBase) Name() string { return b.name }

// invoke сериализует запрос, вызывает операцию и разбирает ответ в out.
func (b *verificationBase) invoke(ctx context.Context, operation string, in, out interface{}) error {
	return invoke(ctx, b.caller, b.name, operation, in, out)
}

func (b *verificationBase) StoreResult(ctx context.Context, checkID string, state *domain.VerificationState) error {
	check, err := b.checks.GetCheck(ctx, checkID)
	if err != nil {
		return err
	}

	details, err := NormalizeDetails(state.Details)
	if err != nil {
		return fmt.Errorf("provider %s: %w", b.name, err)
	}

	switch state.Status {
	case domain.VerificationCompleted:
		result := domain.ResultReviewRequired
		if state.Result != nil {
			result = *state.Result
		}
		check.Complete(domain.VerificationCompleted, result, details, b.now())
	case domain.VerificationFailed:
		check.Complete(domain.VerificationFailed, domain.ResultFail, details, b.now())
	default:
		check.Status = state.Status
		if len(details) > 0 {
			check.Details = details
		}
	}
	return b.checks.UpdateCheck(ctx, check)
}

func invoke(ctx context.Context, caller Caller, provider, operation string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("provider %s: failed to encode %s request: %w", provider, operation, err)
	}
	raw, err := caller.Call(ctx, operation, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.ProviderError{
			Provider: provider,
			Kind:     domain.ProviderKindHTTP,
			Cause:    fmt.Errorf("malformed %s response: %w", operation, err),
		}
	}
	return nil
}

func resultPtr(r domain.CheckResult) *domain.CheckResult { return &r }
