package coa

import (
	"context"
	"errors"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// pucClasses maps the leading digit of a PUC code to its class.
var pucClasses = map[byte]accounting.AccountClass{
	'1': accounting.ClassAsset,
	'2': accounting.ClassLiability,
	'3': accounting.ClassEquity,
	'4': accounting.ClassRevenue,
	'5': accounting.ClassExpense,
	'6': accounting.ClassCostOfSales,
	'7': accounting.ClassProductionCost,
	'8': accounting.ClassMemorandum,
	'9': accounting.ClassMemorandum,
}

// PUCClass returns the class the PUC convention assigns to code.
func PUCClass(code string) (accounting.AccountClass, bool) {
	if code == "" {
		return "", false
	}
	class, ok := pucClasses[code[0]]
	return class, ok
}

// Plan orders rows parents-first and fills in what the file leaves out: the
// parent of a row without one is the longest other code that prefixes it, and
// roots without a class get the PUC class of their leading digit.
func Plan(rows []Row, existing []accounting.Account) []accounting.CreateAccountInput {
	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Code) != len(sorted[j].Code) {
			return len(sorted[i].Code) < len(sorted[j].Code)
		}
		return sorted[i].Code < sorted[j].Code
	})

	known := map[string]struct{}{}
	for _, a := range existing {
		known[a.Code] = struct{}{}
	}
	out := make([]accounting.CreateAccountInput, 0, len(sorted))
	for _, row := range sorted {
		in := accounting.CreateAccountInput{Code: row.Code, Name: row.Name, ParentCode: row.ParentCode, Class: row.Class}
		if in.ParentCode == "" {
			in.ParentCode = longestPrefix(row.Code, known)
		}
		if in.ParentCode == "" && in.Class == "" {
			in.Class, _ = PUCClass(row.Code)
		}
		if in.ParentCode != "" {
			in.Class = ""
		}
		known[row.Code] = struct{}{}
		out = append(out, in)
	}
	return out
}

func longestPrefix(code string, known map[string]struct{}) string {
	for n := len(code) - 1; n > 0; n-- {
		if _, ok := known[code[:n]]; ok {
			return code[:n]
		}
	}
	return ""
}

// AccountCreator is the part of the ledger service the importer drives.
type AccountCreator interface {
	CreateAccount(ctx context.Context, in accounting.CreateAccountInput) (accounting.Account, error)
}

// RowError ties a failure to the account code that caused it.
type RowError struct {
	Code string
	Err  error
}

func (e RowError) Error() string { return e.Code + ": " + e.Err.Error() }

// Result summarises an import run.
type Result struct {
	Created int
	Skipped int
	Errors  []RowError
}

// Import creates every planned account in order. Accounts that already exist
// are skipped so the import can be re-run; other row failures are collected.
func Import(ctx context.Context, creator AccountCreator, plan []accounting.CreateAccountInput) (Result, error) {
	var res Result
	for _, in := range plan {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := creator.CreateAccount(ctx, in)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, accounting.ErrAccountExists):
			res.Skipped++
		case errors.Is(err, accounting.ErrStorage):
			return res, err
		default:
			res.Errors = append(res.Errors, RowError{Code: in.Code, Err: err})
		}
	}
	return res, nil
}
