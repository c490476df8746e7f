package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xela07ax/compliance-console/internal/domain"
)

const (
	refinitivOpScreen       = "cases/screen"
	refinitivOpBatch        = "cases/batch"
	refinitivOpBatchResults = "cases/batch/results"
)

// refinitivProvider — World-Check: у каждого совпадения есть matchStrength.
type refinitivProvider struct {
	amlBase
}

type refinitivCase struct {
	Name        string   `json:"name"`
	DateOfBirth string   `json:"dateOfBirth,omitempty"`
	Country     string   `json:"countryLocation,omitempty"`
	Categories  []string `json:"providerTypes"`
}

type refinitivScreening struct {
	Results []refinitivHit `json:"results"`
}

type refinitivHit struct {
	MatchStrength string `json:"matchStrength"`
	Category      string `json:"category"`
}

func refinitivCategories(t domain.AMLCheckType) []string {
	switch t {
	case domain.AMLSanction:
		return []string{"SANCTIONS"}
	case domain.AMLPEP:
		return []string{"PEP"}
	case domain.AMLAdverseMedia:
		return []string{"MEDIA"}
	default:
		return []string{"SANCTIONS", "PEP", "MEDIA"}
	}
}

func newRefinitivCase(pd domain.PersonalData, t domain.AMLCheckType) refinitivCase {
	return refinitivCase{Name: pd.FullName(), DateOfBirth: pd.DateOfBirth, Country: pd.Country, Categories: refinitivCategories(t)}
}

func (p *refinitivProvider) RunCheck(ctx context.Context, pd domain.PersonalData, checkType domain.AMLCheckType) (*domain.AMLResult, error) {
	var raw json.RawMessage
	if err := p.invoke(ctx, refinitivOpScreen, newRefinitivCase(pd, checkType), &raw); err != nil {
		return nil, err
	}
	return p.toResult(raw)
}

func (p *refinitivProvider) toResult(raw json.RawMessage) (*domain.AMLResult, error) {
	var s refinitivScreening
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &domain.ProviderError{Provider: p.name, Kind: domain.ProviderKindHTTP, Cause: err}
	}
	return &domain.AMLResult{Result: classifyRefinitiv(s.Results), Details: raw}, nil
}

// classifyRefinitiv: EXACT/STRONG — совпадение, остальное требует ручного разбора.
func classifyRefinitiv(hits []refinitivHit) domain.AMLMatch {
	if len(hits) == 0 {
		return domain.AMLNoMatch
	}
	for _, h := range hits {
		switch strings.ToUpper(h.MatchStrength) {
		case "EXACT", "STRONG":
			return domain.AMLMatchFound
		}
	}
	return domain.AMLPossibleMatch
}

func (p *refinitivProvider) RunBatch(ctx context.Context, people []domain.PersonalData, checkType domain.AMLCheckType) (string, error) {
	cases := make([]refinitivCase, len(people))
	for i, pd := range people {
		cases[i] = newRefinitivCase(pd, checkType)
	}
	var resp struct {
		BatchID string `json:"batchId"`
	}
	if err := p.invoke(ctx, refinitivOpBatch, map[string]interface{}{"cases": cases}, &resp); err != nil {
		return "", err
	}
	return resp.BatchID, nil
}

func (p *refinitivProvider) GetBatchResults(ctx context.Context, externalID string) ([]domain.AMLResult, bool, error) {
	var resp struct {
		Status  string            `json:"status"`
		Results []json.RawMessage `json:"results"`
	}
	if err := p.invoke(ctx, refinitivOpBatchResults, map[string]string{"batchId": externalID}, &resp); err != nil {
		return nil, false, err
	}
	if !strings.EqualFold(resp.Status, "COMPLETED") {
		return nil, false, nil
	}

	results := make([]domain.AMLResult, 0, len(resp.Results))
	for _, raw := range resp.Results {
		r, err := p.toResult(raw)
		if err != nil {
			return nil, false, err
		}
		results = append(results, *r)
	}
	return results, true, nil
}
