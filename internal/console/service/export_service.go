package service

import (
	"context"
	"fmt"
	"io"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/bulkupload"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/export"
	"github.com/xela07ax/compliance-console/internal/repository"
)

// exportAuditLimit — верхняя граница строк в выгрузке журнала
const exportAuditLimit = 5000

type ExportService struct {
	logs     AuditLogProvider
	entities repository.EntityRepository
	auditor  audit.Auditor
}

func NewExportService(logs AuditLogProvider, entities repository.EntityRepository, auditor audit.Auditor) *ExportService {
	return &ExportService{logs: logs, entities: entities, auditor: auditor}
}

// ExportAudit пишет журнал аудита по фильтру в w.
func (s *ExportService) ExportAudit(ctx context.Context, f audit.Filter, format export.Format, w io.Writer, actor string) error {
	if f.Limit <= 0 || f.Limit > exportAuditLimit {
		f.Limit = exportAuditLimit
	}
	events, err := s.logs.FetchLogs(ctx, f)
	if err != nil {
		return fmt.Errorf("export: fetch logs: %w", err)
	}
	if err := export.Write(w, format, export.AuditTable(events)); err != nil {
		return err
	}
	s.logExport(ctx, actor, "audit", format, len(events))
	return nil
}

// ExportEntities пишет реестр инвесторов или эмитентов в w.
func (s *ExportService) ExportEntities(ctx context.Context, kind bulkupload.Kind, format export.Format, w io.Writer, actor string) error {
	var table export.Table
	switch kind {
	case bulkupload.KindInvestors:
		items, err := s.entities.ListInvestors(ctx)
		if err != nil {
			return fmt.Errorf("export: list investors: %w", err)
		}
		table = export.InvestorsTable(items)
	case bulkupload.KindIssuers:
		items, err := s.entities.ListIssuers(ctx)
		if err != nil {
			return fmt.Errorf("export: list issuers: %w", err)
		}
		table = export.IssuersTable(items)
	default:
		return fmt.Errorf("%w: unknown entity kind %q", domain.ErrValidation, kind)
	}

	if err := export.Write(w, format, table); err != nil {
		return err
	}
	s.logExport(ctx, actor, string(kind), format, len(table.Rows))
	return nil
}

func (s *ExportService) logExport(ctx context.Context, actor, dataset string, format export.Format, rows int) {
	s.auditor.Log(audit.AuditEvent{
		TraceID:    traceID(ctx),
		Actor:      actor,
		Action:     audit.ActionExport,
		EntityType: dataset,
		EntityID:   dataset,
		Details:    map[string]interface{}{"format": string(format), "rows": rows},
	})
}
