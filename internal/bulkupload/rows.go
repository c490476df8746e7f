package bulkupload

/*
Файл rows.go — колонки файлов загрузки и правила их полей.
Имя колонки = json-тег поля, поэтому нарушения валидатора называют колонку так же, как в шаблоне.
*/

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/compliance-console/internal/domain"
)

type Kind string

const (
	KindInvestors Kind = "investors"
	KindIssuers   Kind = "issuers"
)

func (k Kind) Valid() bool { return k == KindInvestors || k == KindIssuers }

type investorRow struct {
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email"`
	Type            string `json:"type" validate:"required,oneof=individual institutional accredited"`
	Country         string `json:"country" validate:"required,len=2"`
	KYCStatus       string `json:"kyc_status" validate:"omitempty,oneof=pending verified rejected expired"`
	RiskLevel       string `json:"risk_level" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	InvestmentLimit string `json:"investment_limit" validate:"omitempty,decrange=0:1000000000"`
	DateOfBirth     string `json:"date_of_birth" validate:"omitempty,isodate"`
	Metadata        string `json:"metadata" validate:"omitempty,json"`
}

type issuerRow struct {
	Name               string `json:"name" validate:"required,max=255"`
	RegistrationNumber string `json:"registration_number" validate:"required,max=64"`
	Jurisdiction       string `json:"jurisdiction" validate:"required,len=2"`
	Type               string `json:"type" validate:"required,oneof=corporate fund spv trust"`
	Status             string `json:"status" validate:"omitempty,oneof=active pending suspended"`
	TotalSupply        string `json:"total_supply" validate:"omitempty,decrange=0:1000000000000000"`
	IncorporatedAt     string `json:"incorporated_at" validate:"omitempty,isodate"`
	Metadata           string `json:"metadata" validate:"omitempty,json"`
}

var investorColumns = []string{"name", "email", "type", "country", "kyc_status", "risk_level", "investment_limit", "date_of_birth", "metadata"}
var issuerColumns = []string{"name", "registration_number", "jurisdiction", "type", "status", "total_supply", "incorporated_at", "metadata"}

var investorExample = []string{"Jane Doe", "jane.doe@example.com", "individual", "GB", "pending", "LOW", "250000.00", "1985-04-12", `{"source":"import"}`}
var issuerExample = []string{"Acme Capital Ltd", "RC-1029384", "LU", "fund", "active", "1000000", "2019-06-30", `{"sector":"real_estate"}`}

// Columns — колонки шаблона в порядке вывода.
func Columns(kind Kind) []string {
	if kind == KindIssuers {
		return issuerColumns
	}
	return investorColumns
}

func exampleRow(kind Kind) []string {
	if kind == KindIssuers {
		return issuerExample
	}
	return investorExample
}

func newInvestorRow(r Row) investorRow {
	v := r.Values
	return investorRow{
		Name: v["name"], Email: v["email"], Type: strings.ToLower(v["type"]), Country: strings.ToUpper(v["country"]),
		KYCStatus: strings.ToLower(v["kyc_status"]), RiskLevel: strings.ToUpper(v["risk_level"]),
		InvestmentLimit: v["investment_limit"], DateOfBirth: v["date_of_birth"], Metadata: v["metadata"],
	}
}

func newIssuerRow(r Row) issuerRow {
	v := r.Values
	return issuerRow{
		Name: v["name"], RegistrationNumber: v["registration_number"], Jurisdiction: strings.ToUpper(v["jurisdiction"]),
		Type: strings.ToLower(v["type"]), Status: strings.ToLower(v["status"]),
		TotalSupply: v["total_supply"], IncorporatedAt: v["incorporated_at"], Metadata: v["metadata"],
	}
}

// toInvestor вызывается только для строки, прошедшей валидацию.
func (r investorRow) toInvestor(id string, now time.Time) *domain.Investor {
	inv := &domain.Investor{
		ID:              id,
		Name:            r.Name,
		Email:           strings.ToLower(r.Email),
		Type:            r.Type,
		Country:         r.Country,
		KYCStatus:       r.KYCStatus,
		RiskLevel:       domain.RiskLevel(r.RiskLevel),
		InvestmentLimit: parseDecimal(r.InvestmentLimit),
		DateOfBirth:     parseDate(r.DateOfBirth),
		Metadata:        rawJSON(r.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if inv.KYCStatus == "" {
		inv.KYCStatus = "pending"
	}
	if inv.RiskLevel == "" {
		inv.RiskLevel = domain.RiskLow
	}
	return inv
}

func (r issuerRow) toIssuer(id string, now time.Time) *domain.Issuer {
	iss := &domain.Issuer{
		ID:                 id,
		Name:               r.Name,
		RegistrationNumber: r.RegistrationNumber,
		Jurisdiction:       r.Jurisdiction,
		Type:               r.Type,
		Status:             r.Status,
		TotalSupply:        parseDecimal(r.TotalSupply),
		IncorporatedAt:     parseDate(r.IncorporatedAt),
		Metadata:           rawJSON(r.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if iss.Status == "" {
		iss.Status = "pending"
	}
	return iss
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &t
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
