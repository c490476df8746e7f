package service

/*
Файл aml_service.go — скрининг по санкционным спискам, PEP и негативным СМИ.

Пакетная проверка:
  - провайдер с пакетным API получает весь список, состояние пакета лежит в Redis,
    результаты забираются при чтении пакета (GetBatchResults);
  - провайдер без пакетного API прогоняется поштучно, пакет сразу completed.
Каждый полученный результат сохраняется как ComplianceCheck{type: AML}.
*/

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository"
	"github.com/xela07ax/compliance-console/internal/validation"
	"go.uber.org/zap"
)

const (
	// amlBatchTTL — сколько живет состояние пакета в Redis
	amlBatchTTL = 7 * 24 * time.Hour
	// amlCompleteLockTTL — страховка на случай падения держателя блокировки
	amlCompleteLockTTL = 30 * time.Second
)

// amlTemplateHeader — колонки CSV для пакетной загрузки
var amlTemplateHeader = []string{"entity_id", "first_name", "last_name", "date_of_birth", "email", "country"}

type AMLProviders interface {
	AML(name string) (providers.AMLProvider, error)
}

type AMLCheckRequest struct {
	EntityID  string              `json:"entity_id" validate:"required"`
	Person    domain.PersonalData `json:"person"`
	CheckType domain.AMLCheckType `json:"check_type"`
	Provider  string              `json:"provider,omitempty"`
}

type AMLSubject struct {
	EntityID string              `json:"entity_id"`
	Person   domain.PersonalData `json:"person"`
}

type AMLBatchRequest struct {
	Subjects  []AMLSubject        `json:"subjects" validate:"required,min=1,max=1000,dive"`
	CheckType domain.AMLCheckType `json:"check_type"`
	Provider  string              `json:"provider,omitempty"`
}

type AMLCheckOutcome struct {
	Check  *domain.ComplianceCheck `json:"check"`
	Result *domain.AMLResult       `json:"result"`
}

type AMLService struct {
	providers AMLProviders
	checks    repository.CheckRepository
	rdb       *redis.Client
	auditor   audit.Auditor
	validate  *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

func NewAMLService(p AMLProviders, checks repository.CheckRepository, rdb *redis.Client, auditor audit.Auditor, logger *zap.Logger) *AMLService {
	return &AMLService{
		providers: p,
		checks:    checks,
		rdb:       rdb,
		auditor:   auditor,
		validate:  validation.New(),
		logger:    logger.Named("aml-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func normalizeCheckType(t domain.AMLCheckType) (domain.AMLCheckType, error) {
	if t == "" {
		return domain.AMLFull, nil
	}
	t = domain.AMLCheckType(strings.ToLower(string(t)))
	if !t.Valid() {
		return "", &domain.ValidationError{Violations: []domain.FieldViolation{{
			Field: "check_type", Message: "must be one of: sanction, pep, adverse_media, full",
		}}}
	}
	return t, nil
}

// RunCheck — одиночный скрининг с сохранением результата.
func (s *AMLService) RunCheck(ctx context.Context, req AMLCheckRequest, actor string) (*AMLCheckOutcome, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	checkType, err := normalizeCheckType(req.CheckType)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.AML(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := provider.RunCheck(ctx, req.Person, checkType)
	if err != nil {
		s.logger.Error("aml screening failed", zap.String("provider", provider.Name()), zap.String("entity_id", req.EntityID), zap.Error(err))
		return nil, fmt.Errorf("aml: run check: %w", err)
	}

	check, err := s.saveResult(ctx, req.EntityID, provider.Name(), "", result)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     audit.ActionAMLChecked,
		EntityType: "check",
		EntityID:   check.ID,
		Details: map[string]interface{}{
			"entity_id":  req.EntityID,
			"provider":   provider.Name(),
			"check_type": string(checkType),
			"result":     string(result.Result),
		},
	})
	return &AMLCheckOutcome{Check: check, Result: result}, nil
}

// saveResult — AML проверка сохраняется уже завершенной.
func (s *AMLService) saveResult(ctx context.Context, entityID, provider, externalID string, result *domain.AMLResult) (*domain.ComplianceCheck, error) {
	details, err := providers.NormalizeDetails(result.Details)
	if err != nil {
		return nil, fmt.Errorf("aml: %w", err)
	}
	now := s.now()
	check := &domain.ComplianceCheck{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Type:       domain.CheckAML,
		Provider:   provider,
		ExternalID: externalID,
		CreatedAt:  now,
	}
	check.Complete(domain.VerificationCompleted, result.Result.CheckResult(), details, now)
	if err := s.checks.CreateCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("aml: save check: %w", err)
	}
	return check, nil
}

// RunBatch запускает пакет и возвращает его состояние.
func (s *AMLService) RunBatch(ctx context.Context, req AMLBatchRequest, actor string) (*domain.AMLBatch, error) {
	// 1. Валидация всего пакета: все нарушения сразу
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	checkType, err := normalizeCheckType(req.CheckType)
	if err != nil {
		return nil, err
	}
	if s.rdb == nil {
		return nil, errors.New("aml: batch storage is not configured")
	}
	provider, err := s.providers.AML(req.Provider)
	if err != nil {
		return nil, err
	}

	batch := &domain.AMLBatch{
		ID:        ulid.Make().String(),
		Provider:  provider.Name(),
		CheckType: checkType,
		Status:    domain.AMLBatchProcessing,
		Items:     make([]domain.AMLBatchItem, len(req.Subjects)),
		CreatedAt: s.now(),
	}
	people := make([]domain.PersonalData, len(req.Subjects))
	for i, subj := range req.Subjects {
		batch.Items[i] = domain.AMLBatchItem{EntityID: subj.EntityID, Person: subj.Person}
		people[i] = subj.Person
	}

	// 2. Нативный пакет или поштучный прогон
	externalID, err := provider.RunBatch(ctx, people, checkType)
	switch {
	case errors.Is(err, providers.ErrBatchUnsupported):
		s.runSequential(ctx, provider, batch)
	case err != nil:
		s.logger.Error("aml batch submit failed", zap.String("provider", provider.Name()), zap.Error(err))
		return nil, fmt.Errorf("aml: run batch: %w", err)
	default:
		batch.ExternalID = externalID
	}

	// 3. Состояние пакета
	if err := s.saveBatch(ctx, batch); err != nil {
		return nil, err
	}

	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     audit.ActionAMLBatch,
		EntityType: "aml_batch",
		EntityID:   batch.ID,
		Details: map[string]interface{}{
			"provider":    batch.Provider,
			"check_type":  string(checkType),
			"size":        len(batch.Items),
			"external_id": batch.ExternalID,
		},
	})
	s.logger.Info("aml batch submitted",
		zap.String("batch_id", batch.ID),
		zap.String("provider", batch.Provider),
		zap.Int("size", len(batch.Items)),
		zap.String("status", batch.Status))
	return batch, nil
}

// runSequential — ошибка одного человека не останавливает остальных.
func (s *AMLService) runSequential(ctx context.Context, provider providers.AMLProvider, batch *domain.AMLBatch) {
	for i := range batch.Items {
		item := &batch.Items[i]
		result, err := provider.RunCheck(ctx, item.Person, batch.CheckType)
		if err != nil {
			item.Error = err.Error()
			continue
		}
		s.completeItem(ctx, batch, item, result)
	}
	batch.Status = domain.AMLBatchCompleted
}

func (s *AMLService) completeItem(ctx context.Context, batch *domain.AMLBatch, item *domain.AMLBatchItem, result *domain.AMLResult) {
	item.Result = result
	check, err := s.saveResult(ctx, item.EntityID, batch.Provider, batch.ExternalID, result)
	if err != nil {
		item.Error = err.Error()
		return
	}
	item.CheckID = check.ID
}

// GetBatchResults читает пакет; незавершенный пакет дозапрашивается у провайдера.
// Результаты сохраняет только один из параллельных опросов (SetNX по пакету).
func (s *AMLService) GetBatchResults(ctx context.Context, batchID string) (*domain.AMLBatch, error) {
	if s.rdb == nil {
		return nil, errors.New("aml: batch storage is not configured")
	}
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status == domain.AMLBatchCompleted {
		return batch, nil
	}

	provider, err := s.providers.AML(batch.Provider)
	if err != nil {
		return nil, err
	}
	results, done, err := provider.GetBatchResults(ctx, batch.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("aml: batch results: %w", err)
	}
	if !done {
		return batch, nil
	}

	// 1. Блокировка: пакет уже завершает другой запрос, отдаем текущее состояние
	lockKey := infra.AMLBatchLockKey(batchID)
	acquired, err := s.rdb.SetNX(ctx, lockKey, "1", amlCompleteLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("aml: batch lock: %w", err)
	}
	if !acquired {
		return batch, nil
	}
	defer s.rdb.Del(context.WithoutCancel(ctx), lockKey)

	// 2. Перечитываем: предыдущий держатель мог успеть завершить пакет
	batch, err = s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status == domain.AMLBatchCompleted {
		return batch, nil
	}

	// 3. Результаты приходят в порядке входного списка
	for i := range batch.Items {
		if i >= len(results) {
			batch.Items[i].Error = "no result returned by provider"
			continue
		}
		r := results[i]
		s.completeItem(ctx, batch, &batch.Items[i], &r)
	}
	batch.Status = domain.AMLBatchCompleted

	if err := s.saveBatch(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info("aml batch completed", zap.String("batch_id", batch.ID), zap.Int("size", len(batch.Items)))
	return batch, nil
}

func (s *AMLService) loadBatch(ctx context.Context, batchID string) (*domain.AMLBatch, error) {
	raw, err := s.rdb.Get(ctx, infra.AMLBatchKey(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("aml batch %s: %w", batchID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("aml: load batch: %w", err)
	}
	var batch domain.AMLBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("aml: decode batch %s: %w", batchID, err)
	}
	return &batch, nil
}

func (s *AMLService) saveBatch(ctx context.Context, batch *domain.AMLBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("aml: encode batch: %w", err)
	}
	if err := s.rdb.Set(ctx, infra.AMLBatchKey(batch.ID), payload, amlBatchTTL).Err(); err != nil {
		return fmt.Errorf("aml: save batch: %w", err)
	}
	return nil
}

// BatchTemplate — CSV с заголовком и одной строкой-примером.
func (s *AMLService) BatchTemplate() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(amlTemplateHeader)
	_ = w.Write([]string{"inv-001", "Jane", "Doe", "1985-04-12", "jane.doe@example.com", "GB"})
	w.Flush()
	return buf.Bytes()
}

// ParseBatchCSV читает файл в формате BatchTemplate. Колонки ищутся по заголовку.
func ParseBatchCSV(r io.Reader) ([]AMLSubject, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed csv: %v", domain.ErrValidation, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrValidation)
	}

	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff") // BOM из Excel
		}
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"first_name", "last_name"} {
		if _, ok := idx[required]; !ok {
			return nil, &domain.ValidationError{Violations: []domain.FieldViolation{{Row: 1, Field: required, Message: "column is missing"}}}
		}
	}
	cell := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	subjects := make([]AMLSubject, 0, len(records)-1)
	for _, rec := range records[1:] {
		subjects = append(subjects, AMLSubject{
			EntityID: cell(rec, "entity_id"),
			Person: domain.PersonalData{
				FirstName:   cell(rec, "first_name"),
				LastName:    cell(rec, "last_name"),
				DateOfBirth: cell(rec, "date_of_birth"),
				Email:       cell(rec, "email"),
				Country:     cell(rec, "country"),
			},
		})
	}
	return subjects, nil
}
