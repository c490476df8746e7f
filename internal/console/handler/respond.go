package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"go.uber.org/zap"
)

// ErrorResponse — тело любой ошибки API
type ErrorResponse struct {
	Error      string                  `json:"error"`
	Violations []domain.FieldViolation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError переводит таксономию ошибок в HTTP-статус.
// Текст внутренних ошибок наружу не отдается.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		vErr *domain.ValidationError
		pErr *domain.ProviderError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: domain.ErrValidation.Error(), Violations: vErr.Violations})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotAuthorized):
		writeJSON(w, r, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, r, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
	case errors.As(err, &pErr):
		logger.Warn("provider failure", zap.String("provider", pErr.Provider), zap.String("kind", string(pErr.Kind)), zap.Error(err))
		writeJSON(w, r, http.StatusBadGateway, ErrorResponse{Error: "provider " + pErr.Provider + " unavailable"})
	default:
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// decode читает JSON тело; ошибка разбора — 400.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
