package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xela07ax/compliance-console/internal/domain"
)

const (
	idenfyOpCreateClient = "clients"
	idenfyOpCreateToken  = "token"
	idenfyOpStatus       = "status"
)

// idenfyProvider — у iDenfy нет отдельного applicant: сессия создается токеном,
// в качестве applicant id используется clientId.
type idenfyProvider struct {
	verificationBase
}

type idenfyStatus struct {
	ScanRef     string          `json:"scanRef"`
	Status      string          `json:"status"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func (p *idenfyProvider) CreateApplicant(ctx context.Context, pd domain.PersonalData) (*domain.Applicant, error) {
	var resp struct {
		ClientID string `json:"clientId"`
	}
	req := map[string]string{
		"firstName":   pd.FirstName,
		"lastName":    pd.LastName,
		"dateOfBirth": pd.DateOfBirth,
		"email":       pd.Email,
		"country":     pd.Country,
	}
	if err := p.invoke(ctx, idenfyOpCreateClient, req, &resp); err != nil {
		return nil, err
	}
	return &domain.Applicant{ID: resp.ClientID, Provider: p.name}, nil
}

func (p *idenfyProvider) StartVerification(ctx context.Context, applicantID string, background bool) (*domain.VerificationHandle, error) {
	var resp idenfyStatus
	req := map[string]interface{}{"clientId": applicantID, "generateDigitString": background}
	if err := p.invoke(ctx, idenfyOpCreateToken, req, &resp); err != nil {
		return nil, err
	}
	return &domain.VerificationHandle{ID: resp.ScanRef, Provider: p.name, RedirectURL: resp.RedirectURL}, nil
}

func (p *idenfyProvider) GetStatus(ctx context.Context, verificationID string) (*domain.VerificationState, error) {
	var resp idenfyStatus
	if err := p.invoke(ctx, idenfyOpStatus, map[string]string{"scanRef": verificationID}, &resp); err != nil {
		return nil, err
	}
	state := normalizeIdenfy(resp.Status)
	state.Details = resp.Data
	return state, nil
}

func normalizeIdenfy(status string) *domain.VerificationState {
	switch strings.ToUpper(status) {
	case "NEW", "":
		return &domain.VerificationState{Status: domain.VerificationPending}
	case "ACTIVE", "REVIEWING":
		return &domain.VerificationState{Status: domain.VerificationInProgress}
	case "APPROVED":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultPass)}
	case "DENIED":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultFail)}
	case "SUSPECTED":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultReviewRequired)}
	case "EXPIRED", "DELETED", "FAILED":
		return &domain.VerificationState{Status: domain.VerificationFailed}
	default:
		return &domain.VerificationState{Status: domain.VerificationInProgress}
	}
}
