package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeMint JournalType = iota
	JournalTypePurchasePayment
	JournalTypeTransfer
	JournalTypeDeposit
	JournalTypeTradeToken
	JournalTypeTradePayment
	JournalTypeTradeFee
	JournalTypeLotEscrow
	JournalTypeLotRelease
	JournalTypeBidEscrow
	JournalTypeBidRefund
	JournalTypeAuctionPayout
	JournalTypeAuctionFee
	JournalTypeStakeEscrow
	JournalTypeStakeRelease
	JournalTypeRewardPayout
	JournalTypeRewardFee
	JournalTypeReserveFund
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeMint:
		return "mint"
	case JournalTypePurchasePayment:
		return "purchase_payment"
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeTradeToken:
		return "trade_token"
	case JournalTypeTradePayment:
		return "trade_payment"
	case JournalTypeTradeFee:
		return "trade_fee"
	case JournalTypeLotEscrow:
		return "lot_escrow"
	case JournalTypeLotRelease:
		return "lot_release"
	case JournalTypeBidEscrow:
		return "bid_escrow"
	case JournalTypeBidRefund:
		return "bid_refund"
	case JournalTypeAuctionPayout:
		return "auction_payout"
	case JournalTypeAuctionFee:
		return "auction_fee"
	case JournalTypeStakeEscrow:
		return "stake_escrow"
	case JournalTypeStakeRelease:
		return "stake_release"
	case JournalTypeRewardPayout:
		return "reward_payout"
	case JournalTypeRewardFee:
		return "reward_fee"
	case JournalTypeReserveFund:
		return "reserve_fund"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries settled atomically
	OpRef         string      // Idempotency key of source operation
	Sequence      int64       // Global operation sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	TokenID       uuid.UUID   // Token being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents the full set of journal entries produced by one operation.
// All entries apply atomically or not at all.
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each journal entry is a balanced
// transfer by construction: a single positive amount moves from the credit
// account to the debit account, so total debits equal total credits per entry.
// Multi-leg settlements (e.g. a buy with a fee cut) use multiple entries under
// one batch_id, each individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.TokenID != j.DebitAccount.TokenID || j.TokenID != j.CreditAccount.TokenID {
			return fmt.Errorf("journal %s moves token %s across mismatched accounts", j.JournalID, j.TokenID)
		}
	}

	return nil
}
