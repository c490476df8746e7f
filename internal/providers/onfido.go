package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xela07ax/compliance-console/internal/domain"
)

const (
	onfidoOpCreateApplicant = "applicants"
	onfidoOpStartWorkflow   = "workflow_runs"
	onfidoOpWorkflowStatus  = "workflow_runs/status"
)

// onfidoProvider — статусы workflow run: awaiting_input, processing, approved, declined, review, abandoned, error.
type onfidoProvider struct {
	verificationBase
}

type onfidoApplicantRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob,omitempty"`
	Email     string `json:"email,omitempty"`
	Country   string `json:"country,omitempty"`
}

type onfidoLink struct {
	URL string `json:"url"`
}

type onfidoRun struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Link   onfidoLink      `json:"link"`
	Output json.RawMessage `json:"output,omitempty"`
}

func (p *onfidoProvider) CreateApplicant(ctx context.Context, pd domain.PersonalData) (*domain.Applicant, error) {
	var resp struct {
		ID string `json:"id"`
	}
	req := onfidoApplicantRequest{
		FirstName: pd.FirstName, LastName: pd.LastName, DOB: pd.DateOfBirth, Email: pd.Email, Country: pd.Country,
	}
	if err := p.invoke(ctx, onfidoOpCreateApplicant, req, &resp); err != nil {
		return nil, err
	}
	return &domain.Applicant{ID: resp.ID, Provider: p.name}, nil
}

func (p *onfidoProvider) StartVerification(ctx context.Context, applicantID string, background bool) (*domain.VerificationHandle, error) {
	var run onfidoRun
	req := map[string]interface{}{"applicant_id": applicantID, "background": background}
	if err := p.invoke(ctx, onfidoOpStartWorkflow, req, &run); err != nil {
		return nil, err
	}
	return &domain.VerificationHandle{ID: run.ID, Provider: p.name, RedirectURL: run.Link.URL}, nil
}

func (p *onfidoProvider) GetStatus(ctx context.Context, verificationID string) (*domain.VerificationState, error) {
	var run onfidoRun
	if err := p.invoke(ctx, onfidoOpWorkflowStatus, map[string]string{"id": verificationID}, &run); err != nil {
		return nil, err
	}
	state := normalizeOnfido(run.Status)
	state.Details = run.Output
	return state, nil
}

func normalizeOnfido(status string) *domain.VerificationState {
	switch strings.ToLower(status) {
	case "awaiting_input", "awaiting_applicant", "awaiting_client_input":
		return &domain.VerificationState{Status: domain.VerificationPending}
	case "processing", "in_progress":
		return &domain.VerificationState{Status: domain.VerificationInProgress}
	case "approved", "clear", "complete":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultPass)}
	case "declined", "rejected":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultFail)}
	case "review", "consider":
		return &domain.VerificationState{Status: domain.VerificationCompleted, Result: resultPtr(domain.ResultReviewRequired)}
	case "abandoned", "withdrawn", "error":
		return &domain.VerificationState{Status: domain.VerificationFailed}
	default:
		// Незнакомый статус — считаем, что проверка еще идет
		return &domain.VerificationState{Status: domain.VerificationInProgress}
	}
}
