package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Investor — строка реестра инвесторов, заливается массовой загрузкой.
type Investor struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Type            string          `json:"type"` // individual, institutional, ...
	Country         string          `json:"country"`
	KYCStatus       string          `json:"kyc_status"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	InvestmentLimit decimal.Decimal `json:"investment_limit"`
	DateOfBirth     *time.Time      `json:"date_of_birth,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Issuer struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	RegistrationNumber string          `json:"registration_number"`
	Jurisdiction       string          `json:"jurisdiction"`
	Type               string          `json:"type"` // corporate, fund, spv, ...
	Status             string          `json:"status"`
	TotalSupply        decimal.Decimal `json:"total_supply"`
	IncorporatedAt     *time.Time      `json:"incorporated_at,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
