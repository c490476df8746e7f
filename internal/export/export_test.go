package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return AuditTable([]audit.AuditEvent{
		{Timestamp: at, Actor: "off-1", Action: audit.ActionWorkflowApproved, EntityType: "workflow", EntityID: "wf-1",
			Status: "SUCCESS", Details: map[string]interface{}{"comment": "ok, verified"}},
		{Timestamp: at.Add(time.Minute), Actor: "Zoë Müller", Action: audit.ActionWorkflowRejected, EntityType: "workflow",
			EntityID: "wf-2", Status: "FAILED", Error: strings.Repeat("long error ", 20)},
	})
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, " pdf ": FormatPDF}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("docx: %v", err)
	}
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	tbl := sampleTable()
	if err := Write(&buf, FormatCSV, tbl); err != nil {
		t.Fatalf("Write: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(records[0], tbl.Header) || len(records) != 3 {
		t.Fatalf("records = %v", records)
	}
	if records[1][0] != "2026-03-01T12:00:00Z" || records[1][7] != `{"comment":"ok, verified"}` {
		t.Fatalf("row = %v", records[1])
	}
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	tbl := sampleTable()
	if err := Write(&buf, FormatXLSX, tbl); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Audit log")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 || !reflect.DeepEqual(rows[0], tbl.Header) || rows[2][1] != "Zoë Müller" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestWrite_PDF(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatPDF, sampleTable()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

func TestWrite_PDFManyPages(t *testing.T) {
	tbl := Table{Title: "Investors", Header: []string{"a", "b"}}
	for i := 0; i < 200; i++ {
		tbl.Rows = append(tbl.Rows, []string{"x", "y"})
	}
	var buf bytes.Buffer
	if err := Write(&buf, FormatPDF, tbl); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestEntityTables(t *testing.T) {
	dob := time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC)
	inv := InvestorsTable([]*domain.Investor{{
		ID: "i1", Name: "Jane", Email: "j@x", RiskLevel: domain.RiskLow,
		InvestmentLimit: decimal.RequireFromString("1000.5"), DateOfBirth: &dob,
	}})
	if len(inv.Rows[0]) != len(inv.Header) || inv.Rows[0][7] != "1000.50" || inv.Rows[0][8] != "1985-04-12" {
		t.Fatalf("investor row = %v", inv.Rows[0])
	}

	iss := IssuersTable([]*domain.Issuer{{ID: "s1", TotalSupply: decimal.NewFromInt(5)}})
	if len(iss.Rows[0]) != len(iss.Header) || iss.Rows[0][6] != "5" || iss.Rows[0][7] != "" {
		t.Fatalf("issuer row = %v", iss.Rows[0])
	}
}
