package coa

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrAccountNotFound indicates the code is absent from the chart.
var ErrAccountNotFound = errors.New("coa: account not found")

// Provider supplies the account list at startup.
type Provider interface {
	List(ctx context.Context) ([]Account, error)
}

// Chart is the immutable in-memory chart of accounts, loaded once at process
// start. Lookups never hit the store afterwards.
type Chart struct {
	byCode map[string]Account
	codes  []string
}

// LoadChart builds a Chart from a provider.
func LoadChart(ctx context.Context, p Provider) (*Chart, error) {
	accounts, err := p.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("coa: load chart: %w", err)
	}
	return NewChart(accounts), nil
}

// NewChart builds a Chart from a static account list.
func NewChart(accounts []Account) *Chart {
	c := &Chart{byCode: make(map[string]Account, len(accounts))}
	for _, acc := range accounts {
		if !acc.IsActive {
			continue
		}
		c.byCode[acc.Code] = acc
		c.codes = append(c.codes, acc.Code)
	}
	sort.Strings(c.codes)
	return c
}

// Lookup returns the account for a code.
func (c *Chart) Lookup(code string) (Account, error) {
	acc, ok := c.byCode[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return acc, nil
}

// Has reports whether the code exists in the chart.
func (c *Chart) Has(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// List returns all accounts ordered by code.
func (c *Chart) List() []Account {
	out := make([]Account, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, c.byCode[code])
	}
	return out
}
