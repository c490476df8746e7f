package export

import (
	"encoding/json"
	"time"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
)

func AuditTable(events []audit.AuditEvent) Table {
	t := Table{
		Title:  "Audit log",
		Header: []string{"timestamp", "actor", "action", "entity_type", "entity_id", "status", "error", "details", "trace_id"},
		Rows:   make([][]string, 0, len(events)),
	}
	for _, e := range events {
		details := ""
		if len(e.Details) > 0 {
			raw, _ := json.Marshal(e.Details)
			details = string(raw)
		}
		t.Rows = append(t.Rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339), e.Actor, e.Action, e.EntityType, e.EntityID,
			e.Status, e.Error, details, e.TraceID,
		})
	}
	return t
}

func InvestorsTable(items []*domain.Investor) Table {
	t := Table{
		Title:  "Investors",
		Header: []string{"id", "name", "email", "type", "country", "kyc_status", "risk_level", "investment_limit", "date_of_birth", "updated_at"},
		Rows:   make([][]string, 0, len(items)),
	}
	for _, inv := range items {
		t.Rows = append(t.Rows, []string{
			inv.ID, inv.Name, inv.Email, inv.Type, inv.Country, inv.KYCStatus, string(inv.RiskLevel),
			inv.InvestmentLimit.StringFixed(2), date(inv.DateOfBirth), inv.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func IssuersTable(items []*domain.Issuer) Table {
	t := Table{
		Title:  "Issuers",
		Header: []string{"id", "name", "registration_number", "jurisdiction", "type", "status", "total_supply", "incorporated_at", "updated_at"},
		Rows:   make([][]string, 0, len(items)),
	}
	for _, iss := range items {
		t.Rows = append(t.Rows, []string{
			iss.ID, iss.Name, iss.RegistrationNumber, iss.Jurisdiction, iss.Type, iss.Status,
			iss.TotalSupply.String(), date(iss.IncorporatedAt), iss.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
