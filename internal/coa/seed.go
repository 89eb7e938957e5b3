package coa

// Default account codes referenced by posting rules. The seed chart mirrors a
// minimal small-business layout for an IVA jurisdiction.
const (
	AccountCash             = "1101"
	AccountBank             = "1102"
	AccountReceivable       = "1103"
	AccountInventory        = "1104"
	AccountPayable          = "2101"
	AccountIVAPayable       = "2102"
	AccountOwnersEquity     = "3101"
	AccountSalesRevenue     = "4101"
	AccountInterestIncome   = "4102"
	AccountCOGS             = "5101"
	AccountInventoryLosses  = "5102"
	AccountBankFees         = "5103"
	AccountReconAdjustments = "5104"
)

// SeedAccounts returns the default chart used when the store is empty.
func SeedAccounts() []Account {
	mk := func(code, name string, kind AccountKind) Account {
		return Account{Code: code, Name: name, Kind: kind, IsActive: true}
	}
	return []Account{
		mk(AccountCash, "Cash on Hand", KindAsset),
		mk(AccountBank, "Bank Accounts", KindAsset),
		mk(AccountReceivable, "Accounts Receivable", KindAsset),
		mk(AccountInventory, "Inventory", KindAsset),
		mk(AccountPayable, "Accounts Payable", KindLiability),
		mk(AccountIVAPayable, "IVA Payable", KindLiability),
		mk(AccountOwnersEquity, "Owner's Equity", KindEquity),
		mk(AccountSalesRevenue, "Sales Revenue", KindRevenue),
		mk(AccountInterestIncome, "Interest Income", KindRevenue),
		mk(AccountCOGS, "Cost of Goods Sold", KindExpense),
		mk(AccountInventoryLosses, "Inventory Losses", KindExpense),
		mk(AccountBankFees, "Bank Fees", KindExpense),
		mk(AccountReconAdjustments, "Reconciliation Adjustments", KindExpense),
	}
}
