package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/bulkupload"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/export"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

// Exporter — выгрузки журнала и реестров
type Exporter interface {
	ExportAudit(ctx context.Context, f audit.Filter, format export.Format, w io.Writer, actor string) error
	ExportEntities(ctx context.Context, kind bulkupload.Kind, format export.Format, w io.Writer, actor string) error
}

type AuditHandler struct {
	service  *service.AuditService
	exporter Exporter
	logger   *zap.Logger
}

func NewAuditHandler(s *service.AuditService, exporter Exporter, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, exporter: exporter, logger: logger.Named("audit-handler")}
}

// parseFilter читает фильтр журнала из query.
// GET /v1/audit?entity_id=...&actor=...&action=...&from=RFC3339&to=RFC3339&limit=100
func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		EntityID: q.Get("entity_id"),
		Actor:    q.Get("actor"),
		Action:   q.Get("action"),
	}

	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	return f, nil
}

// GetLogs возвращает список событий аудита с поддержкой фильтрации
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid filter: " + err.Error()})
		return
	}

	logs, err := h.service.FetchLogs(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, logs)
}

// Export — тот же фильтр, ответ файлом.
// GET /v1/audit/export?format=csv|xlsx|pdf
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid filter: " + err.Error()})
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Файл собирается в памяти: при ошибке клиент получает JSON, а не обрезанный файл
	var buf bytes.Buffer
	if err := h.exporter.ExportAudit(r.Context(), f, format, &buf, auth.UserID(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeAttachment(w, format, "audit_"+time.Now().UTC().Format("20060102"), buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, format export.Format, name string, body []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.`+string(format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
