package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-console/internal/bulkupload"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

const defaultMaxUploadMB = 10

type UploadService interface {
	Upload(ctx context.Context, kind bulkupload.Kind, filename string, r io.Reader, actor string) (*bulkupload.UploadResult, error)
}

type UploadHandler struct {
	service  UploadService
	maxBytes int64 // предел тела multipart-запроса
	logger   *zap.Logger
}

func NewUploadHandler(s UploadService, maxUploadMB int64, logger *zap.Logger) *UploadHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	return &UploadHandler{service: s, maxBytes: maxUploadMB << 20, logger: logger.Named("upload-handler")}
}

func kindParam(w http.ResponseWriter, r *http.Request) (bulkupload.Kind, bool) {
	kind := bulkupload.Kind(strings.ToLower(chi.URLParam(r, "kind")))
	if !kind.Valid() {
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "unknown entity kind"})
		return "", false
	}
	return kind, true
}

// Upload принимает файл (поле "file") .xlsx/.xls/.csv.
// POST /v1/uploads/{kind}
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	res, err := h.service.Upload(r.Context(), kind, header.Filename, file, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Template отдает пустой шаблон с примером строки.
// GET /v1/uploads/{kind}/template?format=xlsx|csv
func (h *UploadHandler) Template(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	format := bulkupload.Format(strings.ToLower(r.URL.Query().Get("format")))
	contentType := "text/csv; charset=utf-8"
	switch format {
	case "", bulkupload.FormatXLSX:
		format = bulkupload.FormatXLSX
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case bulkupload.FormatCSV:
	default:
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "format must be xlsx or csv"})
		return
	}

	body, err := bulkupload.Template(kind, format)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+string(kind)+`_template.`+string(format)+`"`)
	_, _ = w.Write(body)
}
