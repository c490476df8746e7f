package providers

import (
	"context"
	"errors"

	"github.com/xela07ax/compliance-console/internal/domain"
)

// ErrBatchUnsupported — у провайдера нет пакетного API, пакет прогоняется поштучно.
var ErrBatchUnsupported = errors.New("provider has no native batch screening")

type AMLProvider interface {
	Name() string
	RunCheck(ctx context.Context, pd domain.PersonalData, checkType domain.AMLCheckType) (*domain.AMLResult, error)
	// RunBatch возвращает id пакета у провайдера
	RunBatch(ctx context.Context, people []domain.PersonalData, checkType domain.AMLCheckType) (string, error)
	// GetBatchResults отдает результаты в порядке входного списка; done=false — пакет еще в работе
	GetBatchResults(ctx context.Context, externalID string) (results []domain.AMLResult, done bool, err error)
}

type amlBase struct {
	name   string
	caller Caller
}

func (b *amlBase) Name() string { return b.name }

func (b *amlBase) invoke(ctx context.Context, operation string, in, out interface{}) error {
	return invoke(ctx, b.caller, b.name, operation, in, out)
}
