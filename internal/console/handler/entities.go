package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/xela07ax/compliance-console/internal/export"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

type EntityHandler struct {
	exporter Exporter
	logger   *zap.Logger
}

func NewEntityHandler(exporter Exporter, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{exporter: exporter, logger: logger.Named("entity-handler")}
}

// Export — реестр инвесторов или эмитентов файлом.
// GET /v1/entities/{kind}/export?format=csv|xlsx|pdf
func (h *EntityHandler) Export(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.ExportEntities(r.Context(), kind, format, &buf, auth.UserID(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeAttachment(w, format, string(kind)+"_"+time.Now().UTC().Format("20060102"), buf.Bytes())
}
