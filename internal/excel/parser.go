package excel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"student-progress-sync/internal/model"
	"student-progress-sync/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// headerAliases maps accepted header spellings to the canonical column.
var headerAliases = map[string]string{
	"name":              "name",
	"full_name":         "name",
	"email":             "email",
	"phone":             "phone",
	"handle":            "handle",
	"codeforces_handle": "handle",
	"codeforceshandle":  "handle",
}

var requiredColumns = []string{"name", "email", "handle"}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.RosterRow, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrInvalidFileFormat
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
		if canonical, ok := headerAliases[key]; ok {
			columnMap[canonical] = i
		}
	}

	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("%w: missing required column: %s", errors.ErrInvalidFileFormat, col)
		}
	}

	var roster []model.RosterRow
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(row) {
			continue
		}

		r, err := p.parseRow(row, columnMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
		}
		roster = append(roster, *r)
	}

	return roster, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int) (*model.RosterRow, error) {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	r := &model.RosterRow{
		Name:   getValue("name"),
		Email:  getValue("email"),
		Phone:  getValue("phone"),
		Handle: getValue("handle"),
	}

	for _, col := range requiredColumns {
		if getValue(col) == "" {
			return nil, fmt.Errorf("%s is required", col)
		}
	}

	return r, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
