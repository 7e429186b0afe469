package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Holder Balance Queries ===

// GetAvailableBalance returns the spendable balance of a holder in one token
func (bt *BalanceTracker) GetAvailableBalance(holderID, tokenID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(holderID, SubAvailable, tokenID))
}

// GetStakedBalance returns the holder's locked stake in one token
func (bt *BalanceTracker) GetStakedBalance(holderID, tokenID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(holderID, SubStaked, tokenID))
}

// GetTotalBalance returns available + staked for a holder in one token
func (bt *BalanceTracker) GetTotalBalance(holderID, tokenID uuid.UUID) int64 {
	return bt.GetAvailableBalance(holderID, tokenID) + bt.GetStakedBalance(holderID, tokenID)
}

// GetCirculatingSupply derives a token's circulating supply from the mint
// account. Minting credits external:mint, which therefore carries
// -supply at all times.
func (bt *BalanceTracker) GetCirculatingSupply(tokenID uuid.UUID) int64 {
	return -bt.GetBalance(NewExternalAccountKey(SubMint, tokenID))
}

// GetEscrowBalance returns one auction's escrowed balance
func (bt *BalanceTracker) GetEscrowBalance(auctionID uuid.UUID, sub AccountSubType, tokenID uuid.UUID) int64 {
	return bt.GetBalance(NewEscrowAccountKey(auctionID, sub, tokenID))
}

// GetFeeSinkBalance returns accumulated protocol fees in one token
func (bt *BalanceTracker) GetFeeSinkBalance(tokenID uuid.UUID) int64 {
	return bt.GetBalance(NewSystemAccountKey(SubFeeSink, tokenID))
}

// GetRewardReserve returns the undistributed staking reward pool in one token
func (bt *BalanceTracker) GetRewardReserve(tokenID uuid.UUID) int64 {
	return bt.GetBalance(NewSystemAccountKey(SubRewardReserve, tokenID))
}

// === Invariant Checks ===

// ValidateSufficientAvailable checks if a holder can spend the required amount
func (bt *BalanceTracker) ValidateSufficientAvailable(holderID, tokenID uuid.UUID, required int64) error {
	available := bt.GetAvailableBalance(holderID, tokenID)
	if available < required {
		return fmt.Errorf("insufficient available balance: have=%d, need=%d", available, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per token (should be 0 for
// every token in a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[uuid.UUID]int64 {
	totals := make(map[uuid.UUID]int64)

	for key, balance := range bt.balances {
		totals[uuid.UUID(key.TokenID)] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances from a snapshot (recovery path)
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		bt.balances[k] = v
	}
}
