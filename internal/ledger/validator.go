package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies every token nets to zero across all accounts
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for tokenID, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for token %s is non-zero: %d", tokenID, total)
		}
	}

	return nil
}

// ValidateHolderNonNegative checks a holder's available and staked balances
func (v *InvariantValidator) ValidateHolderNonNegative(holderID, tokenID uuid.UUID) error {
	if err := v.tracker.ValidateNonNegative(NewUserAccountKey(holderID, SubAvailable, tokenID)); err != nil {
		return err
	}
	return v.tracker.ValidateNonNegative(NewUserAccountKey(holderID, SubStaked, tokenID))
}

// ValidateEscrowConsistent checks an auction's escrow accounts never go
// negative. The bid escrow holds at most one leading bid, so a negative
// balance means a refund was double-applied.
func (v *InvariantValidator) ValidateEscrowConsistent(auctionID, tokenID, currencyID uuid.UUID) error {
	if err := v.tracker.ValidateNonNegative(NewEscrowAccountKey(auctionID, SubAuctionLot, tokenID)); err != nil {
		return err
	}
	return v.tracker.ValidateNonNegative(NewEscrowAccountKey(auctionID, SubAuctionBid, currencyID))
}

// ValidateRewardReserveNonNegative checks the staking reserve
func (v *InvariantValidator) ValidateRewardReserveNonNegative(currencyID uuid.UUID) error {
	return v.tracker.ValidateNonNegative(NewSystemAccountKey(SubRewardReserve, currencyID))
}
