package handler

import (
	"context"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

type AMLService interface {
	RunCheck(ctx context.Context, req service.AMLCheckRequest, actor string) (*service.AMLCheckOutcome, error)
	RunBatch(ctx context.Context, req service.AMLBatchRequest, actor string) (*domain.AMLBatch, error)
	GetBatchResults(ctx context.Context, batchID string) (*domain.AMLBatch, error)
	BatchTemplate() []byte
}

type AMLHandler struct {
	service AMLService
	logger  *zap.Logger
}

func NewAMLHandler(s AMLService, logger *zap.Logger) *AMLHandler {
	return &AMLHandler{service: s, logger: logger.Named("aml-handler")}
}

// Check — одиночная проверка по санкционным спискам, PEP и негативным новостям
func (h *AMLHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req service.AMLCheckRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.RunCheck(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Batch принимает JSON или CSV (text/csv) по шаблону из /v1/aml/template.csv.
// POST /v1/aml/batches?check_type=sanctions&provider=refinitiv
func (h *AMLHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req service.AMLBatchRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		subjects, err := service.ParseBatchCSV(r.Body)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		req.Subjects = subjects
		req.CheckType = domain.AMLCheckType(r.URL.Query().Get("check_type"))
		req.Provider = r.URL.Query().Get("provider")
	} else if !decode(w, r, &req) {
		return
	}

	batch, err := h.service.RunBatch(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, batch)
}

func (h *AMLHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatchResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, batch)
}

func (h *AMLHandler) Template(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aml_batch_template.csv"`)
	_, _ = w.Write(h.service.BatchTemplate())
}
