// Package coa reads chart-of-accounts files and turns them into ordered
// account creations, inferring the hierarchy the ledger itself never guesses.
package coa

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Row is one line of a chart-of-accounts file.
type Row struct {
	Line       int
	Code       string
	Name       string
	ParentCode string
	Class      accounting.AccountClass
}

var headerAliases = map[string]string{
	"code":        "code",
	"codigo":      "code",
	"account":     "code",
	"name":        "name",
	"nombre":      "name",
	"parent":      "parent",
	"parent_code": "parent",
	"padre":       "parent",
	"class":       "class",
	"clase":       "class",
}

// ReadAccounts reads a CSV with a header row. The code and name columns are
// required; parent and class are optional.
func ReadAccounts(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := headerAliases[key]; ok {
			cols[canonical] = i
		}
	}
	if _, ok := cols["code"]; !ok {
		return nil, errors.New("accounts CSV: missing code column")
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.New("accounts CSV: missing name column")
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		row := Row{Line: line, Code: field(rec, cols, "code"), Name: field(rec, cols, "name"), ParentCode: field(rec, cols, "parent")}
		if row.Code == "" && row.Name == "" {
			continue
		}
		if raw := field(rec, cols, "class"); raw != "" {
			class, err := accounting.ParseAccountClass(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
			row.Class = class
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// WriteAccounts writes the chart in the format ReadAccounts accepts.
func WriteAccounts(w io.Writer, accounts []accounting.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "parent_code", "class"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, acc := range accounts {
		class := ""
		if acc.IsRoot() {
			class = string(acc.Class)
		}
		if err := cw.Write([]string{acc.Code, acc.Name, acc.ParentCode, class}); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
