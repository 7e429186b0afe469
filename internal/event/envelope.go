package event

import (
	"time"

	"github.com/google/uuid"
)

// OpType discriminator for operation payloads
type OpType int32

const (
	OpTypeUnknown OpType = iota
	OpTypeIssueToken
	OpTypePurchaseTokens
	OpTypeTransferTokens
	OpTypeSetUnitPrice
	OpTypeConfirmDeposit
	OpTypeCreateListing
	OpTypeBuyListing
	OpTypeCancelListing
	OpTypeCreateAuction
	OpTypePlaceBid
	OpTypeEndAuction
	OpTypeStake
	OpTypeUnstake
	OpTypeClaimRewards
	OpTypeSetRewardRate
	OpTypeFundRewardReserve
)

// Envelope wraps every applied operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Operation type discriminator
	OpType OpType

	// Acting holder (uuid.Nil for system-originated operations)
	ActorID uuid.UUID

	// Primary resource touched (token, listing, auction; nullable)
	ResourceID uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation (bridge operations only)
	SourceSequence int64

	// JSON-encoded operation-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Operation is the interface all operation payloads must implement
type Operation interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() OpType

	// ActorID returns the acting holder
	ActorID() uuid.UUID

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time

	// SourceSequence returns the upstream ordering key (0 for API operations)
	SourceSequence() int64
}

func (ot OpType) String() string {
	switch ot {
	case OpTypeIssueToken:
		return "IssueToken"
	case OpTypePurchaseTokens:
		return "PurchaseTokens"
	case OpTypeTransferTokens:
		return "TransferTokens"
	case OpTypeSetUnitPrice:
		return "SetUnitPrice"
	case OpTypeConfirmDeposit:
		return "ConfirmDeposit"
	case OpTypeCreateListing:
		return "CreateListing"
	case OpTypeBuyListing:
		return "BuyListing"
	case OpTypeCancelListing:
		return "CancelListing"
	case OpTypeCreateAuction:
		return "CreateAuction"
	case OpTypePlaceBid:
		return "PlaceBid"
	case OpTypeEndAuction:
		return "EndAuction"
	case OpTypeStake:
		return "Stake"
	case OpTypeUnstake:
		return "Unstake"
	case OpTypeClaimRewards:
		return "ClaimRewards"
	case OpTypeSetRewardRate:
		return "SetRewardRate"
	case OpTypeFundRewardReserve:
		return "FundRewardReserve"
	default:
		return "Unknown"
	}
}
