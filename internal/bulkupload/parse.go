package bulkupload

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xuri/excelize/v2"
)

// maxRows — больше строк за одну загрузку не принимаем
const maxRows = 10000

// Row — строка файла: заголовок колонки -> значение. Line — номер строки в файле (с 1).
type Row struct {
	Line   int
	Values map[string]string
}

// ParseFile разбирает .xlsx/.xls (первый лист) или .csv. Первая строка — заголовок.
func ParseFile(filename string, r io.Reader) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx", ".xls":
		records, err = readSpreadsheet(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q, expected .xlsx, .xls or .csv", domain.ErrValidation, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed csv: %v", domain.ErrValidation, err)
	}
	return records, nil
}

func readSpreadsheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		// старый бинарный .xls excelize не читает
		return nil, fmt.Errorf("%w: cannot read spreadsheet (save legacy .xls as .xlsx): %v", domain.ErrValidation, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrValidation)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read sheet %s: %v", domain.ErrValidation, sheet, err)
	}
	return records, nil
}

const utf8BOM = "\ufeff"

func toRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrValidation)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			// Excel "CSV UTF-8" пишет BOM перед первой колонкой
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		values := make(map[string]string, len(header))
		for col, name := range header {
			if name == "" || col >= len(rec) {
				continue
			}
			values[name] = strings.TrimSpace(rec[col])
		}
		rows = append(rows, Row{Line: i + 2, Values: values})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file has no data rows", domain.ErrValidation)
	}
	if len(rows) > maxRows {
		return nil, fmt.Errorf("%w: %d rows exceed the limit of %d", domain.ErrValidation, len(rows), maxRows)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
