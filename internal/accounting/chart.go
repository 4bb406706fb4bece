package accounting

import (
	"fmt"
	"sort"
)

// Chart is an in-memory index of the account tree keyed by code.
type Chart struct {
	accounts map[string]Account
}

// NewChart indexes the given accounts.
func NewChart(accounts []Account) *Chart {
	c := &Chart{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		c.accounts[a.Code] = a
	}
	return c
}

// Len returns the number of indexed accounts.
func (c *Chart) Len() int { return len(c.accounts) }

// Lookup returns the account registered under code.
func (c *Chart) Lookup(code string) (Account, bool) {
	a, ok := c.accounts[code]
	return a, ok
}

// Ancestors returns the path from the root down to code, inclusive.
func (c *Chart) Ancestors(code string) ([]Account, error) {
	var path []Account
	seen := make(map[string]struct{})
	for current := code; current != ""; {
		if _, loop := seen[current]; loop {
			return nil, fmt.Errorf("accounting: cycle in chart at %q", current)
		}
		seen[current] = struct{}{}
		a, ok := c.accounts[current]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, current)
		}
		path = append(path, a)
		current = a.ParentCode
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Root returns the top-level ancestor of code.
func (c *Chart) Root(code string) (Account, error) {
	path, err := c.Ancestors(code)
	if err != nil {
		return Account{}, err
	}
	return path[0], nil
}

// ClassOf resolves the class of code from its root ancestor.
func (c *Chart) ClassOf(code string) (AccountClass, error) {
	root, err := c.Root(code)
	if err != nil {
		return "", err
	}
	return root.Class, nil
}

// Resolved returns every account with its class resolved, ordered by code.
// Accounts whose ancestry is broken keep an empty class.
func (c *Chart) Resolved() []Account {
	out := make([]Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		if class, err := c.ClassOf(a.Code); err == nil {
			a.Class = class
		} else {
			a.Class = ""
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
