package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
)

type KYCService interface {
	StartVerification(ctx context.Context, req service.StartVerificationRequest, actor string) (*service.VerificationStarted, error)
	RefreshStatus(ctx context.Context, checkID, actor string) (*domain.ComplianceCheck, error)
	GetCheck(ctx context.Context, checkID string) (*domain.ComplianceCheck, error)
}

type KYCHandler struct {
	service KYCService
	logger  *zap.Logger
}

func NewKYCHandler(s KYCService, logger *zap.Logger) *KYCHandler {
	return &KYCHandler{service: s, logger: logger.Named("kyc-handler")}
}

// Start создает заявителя у провайдера и запускает верификацию.
// POST /v1/kyc/verifications
func (h *KYCHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartVerificationRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.StartVerification(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

func (h *KYCHandler) GetCheck(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.GetCheck(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, check)
}

// Refresh опрашивает провайдера и сохраняет результат проверки
func (h *KYCHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.RefreshStatus(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, check)
}
