package inventory

import (
	"fmt"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

// AccountRouting maps movement reasons to ledger accounts. Only true sales may
// touch the cost of goods sold account; shrinkage and manual corrections route
// to the losses account so gross margin stays clean.
type AccountRouting struct {
	Inventory string
	Payable   string
	COGS      string
	Losses    string
}

// DefaultRouting uses the seed chart codes.
func DefaultRouting() AccountRouting {
	return AccountRouting{
		Inventory: coa.AccountInventory,
		Payable:   coa.AccountPayable,
		COGS:      coa.AccountCOGS,
		Losses:    coa.AccountInventoryLosses,
	}
}

// inboundCounter returns the account credited on an inbound movement.
func (r AccountRouting) inboundCounter(reason ReasonCode) (string, error) {
	switch reason {
	case ReasonPurchase:
		return r.Payable, nil
	case ReasonReturnIn:
		return r.COGS, nil
	case ReasonManualAdjustment:
		return r.Losses, nil
	default:
		return "", fmt.Errorf("%w: %s for inbound", ErrInvalidReason, reason)
	}
}

// outboundCounter returns the account debited on an outbound movement.
func (r AccountRouting) outboundCounter(reason ReasonCode) (string, error) {
	switch reason {
	case ReasonSale, ReasonReturnOut:
		return r.COGS, nil
	case ReasonLoss, ReasonManualAdjustment:
		return r.Losses, nil
	default:
		return "", fmt.Errorf("%w: %s for outbound", ErrInvalidReason, reason)
	}
}

// originFor maps a reason to the journal entry origin.
func originFor(reason ReasonCode) ledger.EntryOrigin {
	switch reason {
	case ReasonPurchase:
		return ledger.OriginPurchase
	case ReasonSale, ReasonReturnOut, ReasonReturnIn:
		return ledger.OriginSale
	default:
		return ledger.OriginInventoryAdj
	}
}
