package handler

import (
	"context"
	"net/http"

	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

type RiskService interface {
	Assess(ctx context.Context, req service.RiskAssessmentRequest, actor string) (*service.RiskAssessmentResult, error)
}

type RiskHandler struct {
	service RiskService
	logger  *zap.Logger
}

func NewRiskHandler(s RiskService, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{service: s, logger: logger.Named("risk-handler")}
}

// Assess — скоринг сущности, с create_workflow=true сразу заводит согласование
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req service.RiskAssessmentRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Assess(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}
