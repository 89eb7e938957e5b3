package coa

import "time"

// AccountKind enumerates chart of accounts categories.
type AccountKind string

const (
	KindAsset     AccountKind = "ASSET"
	KindLiability AccountKind = "LIABILITY"
	KindEquity    AccountKind = "EQUITY"
	KindRevenue   AccountKind = "REVENUE"
	KindExpense   AccountKind = "EXPENSE"
)

// Side identifies the normal balance of an account.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalBalance returns the side a kind naturally carries its balance on.
func (k AccountKind) NormalBalance() Side {
	switch k {
	case KindAsset, KindExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node. Reference data, immutable at runtime.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Kind      AccountKind
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
