package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/compliance-console/internal/domain"
)

const riskOpScore = "risk-score"

// RiskInput — сущность, отправляемая на удаленный скоринг.
type RiskInput struct {
	EntityID   string                 `json:"entity_id"`
	EntityType domain.EntityType      `json:"entity_type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// RiskScore — ответ функции скоринга (шкала 0..100).
type RiskScore struct {
	Score   float64             `json:"score"`
	Level   domain.RiskLevel    `json:"level"`
	Factors []domain.RiskFactor `json:"factors"`
	Details json.RawMessage     `json:"-"`
}

type RiskScorer struct {
	name   string
	caller Caller
}

func NewRiskScorer(name string, caller Caller) *RiskScorer {
	return &RiskScorer{name: name, caller: caller}
}

func (s *RiskScorer) Name() string { return s.name }

// Score вызывает функцию скоринга; уровень всегда считается по порогам локально.
func (s *RiskScorer) Score(ctx context.Context, in RiskInput) (*RiskScore, error) {
	var raw json.RawMessage
	if err := invoke(ctx, s.caller, s.name, riskOpScore, in, &raw); err != nil {
		return nil, err
	}

	var out RiskScore
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ProviderError{Provider: s.name, Kind: domain.ProviderKindHTTP, Cause: err}
	}
	if out.Score < 0 || out.Score > 100 {
		return nil, &domain.ProviderError{
			Provider: s.name,
			Kind:     domain.ProviderKindHTTP,
			Cause:    fmt.Errorf("score %.2f out of range 0..100", out.Score),
		}
	}
	if out.Factors == nil {
		out.Factors = []domain.RiskFactor{}
	}
	out.Level = domain.RiskLevelForScore(out.Score)
	out.Details = raw
	return &out, nil
}
