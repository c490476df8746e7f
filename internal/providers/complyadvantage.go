package providers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xela07ax/compliance-console/internal/domain"
)

const complyAdvantageOpSearch = "searches"

// complyAdvantageProvider — пакетного API нет, AMLService прогоняет пакет поштучно.
type complyAdvantageProvider struct {
	amlBase
}

type caSearchRequest struct {
	SearchTerm string    `json:"search_term"`
	Fuzziness  float64   `json:"fuzziness"`
	Filters    caFilters `json:"filters"`
}

type caFilters struct {
	Types     []string `json:"types"`
	BirthYear int      `json:"birth_year,omitempty"`
}

type caSearchResponse struct {
	Content struct {
		Data struct {
			MatchStatus string `json:"match_status"`
			TotalHits   int    `json:"total_hits"`
		} `json:"data"`
	} `json:"content"`
}

func complyAdvantageTypes(t domain.AMLCheckType) []string {
	switch t {
	case domain.AMLSanction:
		return []string{"sanction"}
	case domain.AMLPEP:
		return []string{"pep"}
	case domain.AMLAdverseMedia:
		return []string{"adverse-media"}
	default:
		return []string{"sanction", "pep", "adverse-media"}
	}
}

func (p *complyAdvantageProvider) RunCheck(ctx context.Context, pd domain.PersonalData, checkType domain.AMLCheckType) (*domain.AMLResult, error) {
	req := caSearchRequest{
		SearchTerm: pd.FullName(),
		Fuzziness:  0.6,
		Filters:    caFilters{Types: complyAdvantageTypes(checkType), BirthYear: birthYear(pd.DateOfBirth)},
	}

	var raw json.RawMessage
	if err := p.invoke(ctx, complyAdvantageOpSearch, req, &raw); err != nil {
		return nil, err
	}
	var resp caSearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.ProviderError{Provider: p.name, Kind: domain.ProviderKindHTTP, Cause: err}
	}

	data := resp.Content.Data
	return &domain.AMLResult{Result: classifyComplyAdvantage(data.MatchStatus, data.TotalHits), Details: raw}, nil
}

func classifyComplyAdvantage(status string, hits int) domain.AMLMatch {
	switch strings.ToLower(status) {
	case "no_match", "false_positive":
		return domain.AMLNoMatch
	case "true_positive", "true_positive_approve", "true_positive_reject":
		return domain.AMLMatchFound
	case "potential_match", "unknown":
		return domain.AMLPossibleMatch
	}
	if hits == 0 {
		return domain.AMLNoMatch
	}
	return domain.AMLPossibleMatch
}

func (p *complyAdvantageProvider) RunBatch(context.Context, []domain.PersonalData, domain.AMLCheckType) (string, error) {
	return "", ErrBatchUnsupported
}

func (p *complyAdvantageProvider) GetBatchResults(context.Context, string) ([]domain.AMLResult, bool, error) {
	return nil, false, ErrBatchUnsupported
}

// birthYear из YYYY-MM-DD, 0 если даты нет
func birthYear(dob string) int {
	if len(dob) < 4 {
		return 0
	}
	y, err := strconv.Atoi(dob[:4])
	if err != nil {
		return 0
	}
	return y
}
