package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	maxAccountCode = 20
	maxAccountName = 255
)

// Validate checks the shape of a new account, independent of the chart.
func (in CreateAccountInput) Validate() error {
	var errs ValidationErrors
	code := strings.TrimSpace(in.Code)
	switch {
	case code == "":
		errs = append(errs, &ValidationError{Field: "code", Index: -1, Message: "is required"})
	case len(code) > maxAccountCode:
		errs = append(errs, &ValidationError{Field: "code", Index: -1, Message: fmt.Sprintf("exceeds %d characters", maxAccountCode)})
	case strings.IndexFunc(code, unicode.IsSpace) >= 0:
		errs = append(errs, &ValidationError{Field: "code", Index: -1, Message: "must not contain spaces"})
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs = append(errs, &ValidationError{Field: "name", Index: -1, Message: "is required"})
	} else if len(name) > maxAccountName {
		errs = append(errs, &ValidationError{Field: "name", Index: -1, Message: fmt.Sprintf("exceeds %d characters", maxAccountName)})
	}
	parent := strings.TrimSpace(in.ParentCode)
	if parent != "" && parent == code {
		errs = append(errs, &ValidationError{Field: "parent_code", Index: -1, Message: "account cannot be its own parent"})
	}
	if in.Class != "" && !in.Class.Valid() {
		errs = append(errs, &ValidationError{Field: "class", Index: -1, Message: fmt.Sprintf("unknown account class %q", in.Class)})
	}
	if parent == "" && in.Class == "" {
		errs = append(errs, &ValidationError{Field: "class", Index: -1, Message: "root accounts require a class"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateAccount registers a node in the chart. The parent must already exist;
// hierarchy is never inferred from the code.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	acc := Account{
		Code:       strings.TrimSpace(in.Code),
		Name:       strings.TrimSpace(in.Name),
		ParentCode: strings.TrimSpace(in.ParentCode),
		CreatedAt:  s.now(),
	}
	resolved := in.Class
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, acc.Code); err == nil {
			return fmt.Errorf("%w: %s", ErrAccountExists, acc.Code)
		} else if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		if acc.IsRoot() {
			acc.Class = in.Class
			return tx.InsertAccount(ctx, acc)
		}
		path, err := ancestorsTx(ctx, tx, acc.ParentCode)
		if errors.Is(err, ErrAccountNotFound) {
			return &ValidationError{Field: "parent_code", Index: -1, Message: fmt.Sprintf("parent account %q does not exist", acc.ParentCode)}
		}
		if err != nil {
			return err
		}
		for _, a := range path {
			if a.Code == acc.Code {
				return &ValidationError{Field: "parent_code", Index: -1, Message: "parent would create a cycle"}
			}
		}
		rootClass := path[0].Class
		if in.Class != "" && in.Class != rootClass {
			return &ValidationError{Field: "class", Index: -1, Message: fmt.Sprintf("class %s differs from root class %s", in.Class, rootClass)}
		}
		resolved = rootClass
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return Account{}, storageErr("create account", err)
	}
	acc.Class = resolved
	s.record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   "account.create",
		Entity:   "account",
		EntityID: acc.Code,
		Meta:     map[string]any{"parent_code": acc.ParentCode, "class": string(acc.Class)},
	})
	return acc, nil
}

// ResolveAccount returns the account with its class resolved from the root.
func (s *Service) ResolveAccount(ctx context.Context, code string) (Account, error) {
	var acc Account
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		path, err := ancestorsTx(ctx, tx, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		acc = path[len(path)-1]
		acc.Class = path[0].Class
		return nil
	})
	if err != nil {
		return Account{}, storageErr("resolve account", err)
	}
	return acc, nil
}

// Ancestors returns the chain from the root to code, inclusive.
func (s *Service) Ancestors(ctx context.Context, code string) ([]Account, error) {
	var path []Account
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		path, err = ancestorsTx(ctx, tx, strings.TrimSpace(code))
		return err
	})
	if err != nil {
		return nil, storageErr("account ancestors", err)
	}
	for i := range path {
		path[i].Class = path[0].Class
	}
	return path, nil
}

// ListAccounts returns the chart ordered by code. A non-empty search matches a
// code prefix or a case and accent insensitive substring of the name.
func (s *Service) ListAccounts(ctx context.Context, search string) ([]Account, error) {
	var all []Account
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		all, err = tx.ListAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	resolved := NewChart(all).Resolved()
	search = strings.TrimSpace(search)
	if search == "" {
		return resolved, nil
	}
	out := make([]Account, 0)
	for _, a := range resolved {
		if strings.HasPrefix(a.Code, search) || shared.MatchesSearch(a.Name, search) {
			out = append(out, a)
		}
	}
	return out, nil
}

// DeleteAccount removes a leaf account that no movement references.
func (s *Service) DeleteAccount(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, code); err != nil {
			return err
		}
		children, movements, err := tx.AccountUsage(ctx, code)
		if err != nil {
			return err
		}
		if children > 0 || movements > 0 {
			return fmt.Errorf("%w: %s has %d children and %d movements", ErrAccountInUse, code, children, movements)
		}
		return tx.DeleteAccount(ctx, code)
	})
	if err != nil {
		return storageErr("delete account", err)
	}
	s.record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   "account.delete",
		Entity:   "account",
		EntityID: code,
	})
	return nil
}

// ancestorsTx walks parent links inside an open transaction.
func ancestorsTx(ctx context.Context, tx TxRepository, code string) ([]Account, error) {
	var path []Account
	seen := make(map[string]struct{})
	for current := code; current != ""; {
		if _, loop := seen[current]; loop {
			return nil, fmt.Errorf("accounting: cycle in chart at %q", current)
		}
		seen[current] = struct{}{}
		a, err := tx.GetAccount(ctx, current)
		if err != nil {
			return nil, err
		}
		path = append(path, a)
		current = a.ParentCode
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrAccountNotFound, code)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
