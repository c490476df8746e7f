package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/compliance-console/internal/audit"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchLogs запрашивает журнал с фильтрацией.
// Пустые поля фильтра не ограничивают выборку, лимит по умолчанию задает хранилище.
func (s *AuditService) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return []audit.AuditEvent{}, nil
	}
	logs, err := s.repo.FetchLogs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
