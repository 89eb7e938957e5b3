package recon

import (
	"sort"
	"time"

	"github.com/balanza-erp/balanza-erp/internal/money"
)

// DefaultDateWindow is how far apart a statement line and a journal entry
// may be dated and still match. Bank clearing lags postings by a few days.
const DefaultDateWindow = 3 * 24 * time.Hour

// diff pairs statement lines with ledger movements: by reference first, then
// by amount within the date window. Each side is consumed at most once.
func diff(bank []BankMovement, ledger []LedgerMovement, window time.Duration) Result {
	if window <= 0 {
		window = DefaultDateWindow
	}

	bankSorted := append([]BankMovement(nil), bank...)
	ledgerSorted := append([]LedgerMovement(nil), ledger...)
	sort.SliceStable(bankSorted, func(i, j int) bool { return bankSorted[i].Date.Before(bankSorted[j].Date) })
	sort.SliceStable(ledgerSorted, func(i, j int) bool { return ledgerSorted[i].Date.Before(ledgerSorted[j].Date) })

	usedBank := make([]bool, len(bankSorted))
	usedLedger := make([]bool, len(ledgerSorted))
	var result Result

	// Pass 1: a statement reference naming the entry's reference id is
	// authoritative regardless of date, as long as the amount agrees.
	for bi, b := range bankSorted {
		if b.Reference == "" {
			continue
		}
		for li, l := range ledgerSorted {
			if usedLedger[li] {
				continue
			}
			if l.ReferenceID != "" && l.ReferenceID == b.Reference && money.Equal(l.Amount, b.Amount) {
				usedBank[bi] = true
				usedLedger[li] = true
				result.Matches = append(result.Matches, Match{Bank: b, Ledger: l})
				break
			}
		}
	}

	// Pass 2: same amount within the date window, earliest candidate first.
	for bi, b := range bankSorted {
		if usedBank[bi] {
			continue
		}
		for li, l := range ledgerSorted {
			if usedLedger[li] {
				continue
			}
			if !money.Equal(l.Amount, b.Amount) {
				continue
			}
			gap := b.Date.Sub(l.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap <= window {
				usedBank[bi] = true
				usedLedger[li] = true
				result.Matches = append(result.Matches, Match{Bank: b, Ledger: l})
				break
			}
		}
	}

	for bi, b := range bankSorted {
		if !usedBank[bi] {
			result.UnmatchedBank = append(result.UnmatchedBank, b)
		}
	}
	for li, l := range ledgerSorted {
		if !usedLedger[li] {
			result.UnmatchedLedger = append(result.UnmatchedLedger, l)
		}
	}
	return result
}
