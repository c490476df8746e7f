package bulkupload

/*
Файл service.go — конвейер массовой загрузки инвесторов и эмитентов.

 1. Разбор файла в строки по заголовку.
 2. Валидация ВСЕХ строк: при любом нарушении пакет отклоняется целиком (*domain.ValidationError).
 3. Построчный upsert строго по порядку: ошибка строки копится в Errors, остальные строки идут дальше.
*/

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository"
	"github.com/xela07ax/compliance-console/internal/validation"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

type UploadResult struct {
	JobID     string   `json:"job_id"`
	Kind      Kind     `json:"kind"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

type Service struct {
	entities repository.EntityRepository
	rdb      *redis.Client
	auditor  audit.Auditor
	metrics  *infra.Metrics
	validate *validation.Validator
	logger   *zap.Logger
	now      func() time.Time
}

// NewService — rdb может быть nil (без публикации итогов).
func NewService(entities repository.EntityRepository, rdb *redis.Client, auditor audit.Auditor, metrics *infra.Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Service{
		entities: entities,
		rdb:      rdb,
		auditor:  auditor,
		metrics:  metrics,
		validate: validation.New(),
		logger:   logger.Named("bulk-upload"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload разбирает, проверяет и загружает файл.
func (s *Service) Upload(ctx context.Context, kind Kind, filename string, r io.Reader, actor string) (*UploadResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown upload kind %q", domain.ErrValidation, kind)
	}

	// 1. Разбор
	rows, err := ParseFile(filename, r)
	if err != nil {
		return nil, err
	}

	// 2. Валидация всего файла до первой записи
	if err := s.validateRows(kind, rows); err != nil {
		s.metrics.UploadRows.WithLabelValues(string(kind), "invalid").Add(float64(len(rows)))
		s.logger.Info("upload rejected by validation",
			zap.String("kind", string(kind)),
			zap.String("file", filename),
			zap.Int("rows", len(rows)),
			zap.Int("violations", len(err.Violations)))
		return nil, err
	}

	// 3. Построчная запись
	res := &UploadResult{
		JobID:  ulid.Make().String(),
		Kind:   kind,
		Total:  len(rows),
		Errors: make([]string, 0),
	}
	for _, row := range rows {
		if err := s.upsert(ctx, kind, row); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.Line, err))
			s.metrics.UploadRows.WithLabelValues(string(kind), "failed").Inc()
			continue
		}
		res.Succeeded++
		s.metrics.UploadRows.WithLabelValues(string(kind), "succeeded").Inc()
	}

	s.afterUpload(ctx, res, filename, actor)
	return res, nil
}

// validateRows возвращает *ValidationError со всеми нарушениями всех строк.
func (s *Service) validateRows(kind Kind, rows []Row) *domain.ValidationError {
	var violations []domain.FieldViolation
	for _, row := range rows {
		if kind == KindInvestors {
			violations = append(violations, s.validate.Struct(newInvestorRow(row), row.Line)...)
		} else {
			violations = append(violations, s.validate.Struct(newIssuerRow(row), row.Line)...)
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &domain.ValidationError{Violations: violations}
}

func (s *Service) upsert(ctx context.Context, kind Kind, row Row) error {
	// id новой записи; при обновлении хранилище оставляет прежний
	id := uuid.NewString()
	if kind == KindInvestors {
		return s.entities.UpsertInvestor(ctx, newInvestorRow(row).toInvestor(id, s.now()))
	}
	return s.entities.UpsertIssuer(ctx, newIssuerRow(row).toIssuer(id, s.now()))
}

func (s *Service) afterUpload(ctx context.Context, res *UploadResult, filename, actor string) {
	s.auditor.Log(audit.AuditEvent{
		Actor:      actor,
		Action:     audit.ActionBulkUpload,
		EntityType: string(res.Kind),
		EntityID:   res.JobID,
		Details: map[string]interface{}{
			"file":      filename,
			"total":     res.Total,
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
		},
	})

	s.logger.Info("upload processed",
		zap.String("job_id", res.JobID),
		zap.String("kind", string(res.Kind)),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))

	if s.rdb == nil {
		return
	}
	payload, _ := json.Marshal(domain.UploadEvent{
		JobID:     res.JobID,
		Kind:      string(res.Kind),
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Actor:     actor,
		At:        s.now(),
	})
	if err := s.rdb.Publish(ctx, infra.RedisChanUploads, payload).Err(); err != nil {
		s.logger.Warn("upload event delivery failed", zap.String("job_id", res.JobID), zap.Error(err))
	}
}

// Template — файл с заголовком и одной строкой-примером.
func Template(kind Kind, format Format) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown upload kind %q", domain.ErrValidation, kind)
	}
	header, example := Columns(kind), exampleRow(kind)

	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(header)
		_ = w.Write(example)
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("bulkupload: write csv template: %w", err)
		}
		return buf.Bytes(), nil

	case FormatXLSX, "":
		f := excelize.NewFile()
		defer func() { _ = f.Close() }()

		sheet := string(kind)
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, fmt.Errorf("bulkupload: rename sheet: %w", err)
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, fmt.Errorf("bulkupload: write header: %w", err)
		}
		if err := f.SetSheetRow(sheet, "A2", &example); err != nil {
			return nil, fmt.Errorf("bulkupload: write example: %w", err)
		}
		buf, err := f.WriteToBuffer()
		if err != nil {
			return nil, fmt.Errorf("bulkupload: render xlsx: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: unknown template format %q", domain.ErrValidation, format)
	}
}
