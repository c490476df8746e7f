package postgres

/*
Файл entity_repo.go — реестры инвесторов и эмитентов.
Массовая загрузка пишет построчно через Upsert: каждая строка — независимая единица работы.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/compliance-console/internal/domain"
)

// UpsertInvestor вставляет или обновляет инвестора (ключ — email).
func (r *ComplianceRepo) UpsertInvestor(ctx context.Context, inv *domain.Investor) error {
	query := `
		INSERT INTO investors (id, name, email, type, country, kyc_status, risk_level,
		                       investment_limit, date_of_birth, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    type = EXCLUDED.type,
		    country = EXCLUDED.country,
		    kyc_status = EXCLUDED.kyc_status,
		    risk_level = EXCLUDED.risk_level,
		    investment_limit = EXCLUDED.investment_limit,
		    date_of_birth = EXCLUDED.date_of_birth,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, inv.ID, inv.Name, inv.Email, inv.Type, inv.Country, inv.KYCStatus,
		string(inv.RiskLevel), inv.InvestmentLimit.String(), inv.DateOfBirth, nullableJSON(inv.Metadata))
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert investor %s: %w", inv.Email, err)
	}
	return nil
}

// UpsertIssuer вставляет или обновляет эмитента (ключ — регистрационный номер).
func (r *ComplianceRepo) UpsertIssuer(ctx context.Context, iss *domain.Issuer) error {
	query := `
		INSERT INTO issuers (id, name, registration_number, jurisdiction, type, status,
		                     total_supply, incorporated_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, NOW(), NOW())
		ON CONFLICT (registration_number) DO UPDATE
		SET name = EXCLUDED.name,
		    jurisdiction = EXCLUDED.jurisdiction,
		    type = EXCLUDED.type,
		    status = EXCLUDED.status,
		    total_supply = EXCLUDED.total_supply,
		    incorporated_at = EXCLUDED.incorporated_at,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, iss.ID, iss.Name, iss.RegistrationNumber, iss.Jurisdiction, iss.Type,
		iss.Status, iss.TotalSupply.String(), iss.IncorporatedAt, nullableJSON(iss.Metadata))
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert issuer %s: %w", iss.RegistrationNumber, err)
	}
	return nil
}

// ListInvestors выгрузка реестра для экспорта.
func (r *ComplianceRepo) ListInvestors(ctx context.Context) ([]*domain.Investor, error) {
	query := `
		SELECT id, name, email, type, country, kyc_status, risk_level, investment_limit::text,
		       date_of_birth, metadata, created_at, updated_at
		FROM investors ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query investors: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Investor, 0)
	for rows.Next() {
		var (
			inv   domain.Investor
			limit string
			dob   *time.Time
		)
		if err := rows.Scan(&inv.ID, &inv.Name, &inv.Email, &inv.Type, &inv.Country, &inv.KYCStatus,
			&inv.RiskLevel, &limit, &dob, &inv.Metadata, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan investor: %w", err)
		}
		if inv.InvestmentLimit, err = decimal.NewFromString(limit); err != nil {
			return nil, fmt.Errorf("postgres: bad investment_limit for %s: %w", inv.ID, err)
		}
		inv.DateOfBirth = dob
		results = append(results, &inv)
	}
	return results, rows.Err()
}

func (r *ComplianceRepo) ListIssuers(ctx context.Context) ([]*domain.Issuer, error) {
	query := `
		SELECT id, name, registration_number, jurisdiction, type, status, total_supply::text,
		       incorporated_at, metadata, created_at, updated_at
		FROM issuers ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query issuers: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Issuer, 0)
	for rows.Next() {
		var (
			iss    domain.Issuer
			supply string
		)
		if err := rows.Scan(&iss.ID, &iss.Name, &iss.RegistrationNumber, &iss.Jurisdiction, &iss.Type,
			&iss.Status, &supply, &iss.IncorporatedAt, &iss.Metadata, &iss.CreatedAt, &iss.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan issuer: %w", err)
		}
		if iss.TotalSupply, err = decimal.NewFromString(supply); err != nil {
			return nil, fmt.Errorf("postgres: bad total_supply for %s: %w", iss.ID, err)
		}
		results = append(results, &iss)
	}
	return results, rows.Err()
}
