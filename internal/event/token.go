package event

import (
	"time"

	"github.com/google/uuid"
)

// IssueToken registers a new fan token with a supply cap and primary-sale
// unit price. The actor becomes the token's issuer. PaymentToken is the
// currency the token trades against; uuid.Nil selects the ledger's quote
// currency.
type IssueToken struct {
	OpID         uuid.UUID `json:"op_id"`
	Actor        uuid.UUID `json:"actor"`
	TokenID      uuid.UUID `json:"token_id"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	SupplyCap    int64     `json:"supply_cap"`
	UnitPrice    int64     `json:"unit_price"`
	PaymentToken uuid.UUID `json:"payment_token"`
	Benefits     []string  `json:"benefits,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (o *IssueToken) IdempotencyKey() string { return o.OpID.String() }
func (o *IssueToken) OpType() OpType         { return OpTypeIssueToken }
func (o *IssueToken) ActorID() uuid.UUID     { return o.Actor }
func (o *IssueToken) OccurredAt() time.Time  { return o.Timestamp }
func (o *IssueToken) SourceSequence() int64  { return 0 }

// PurchaseTokens mints tokens to the actor at the token's current unit price.
type PurchaseTokens struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *PurchaseTokens) IdempotencyKey() string { return o.OpID.String() }
func (o *PurchaseTokens) OpType() OpType         { return OpTypePurchaseTokens }
func (o *PurchaseTokens) ActorID() uuid.UUID     { return o.Actor }
func (o *PurchaseTokens) OccurredAt() time.Time  { return o.Timestamp }
func (o *PurchaseTokens) SourceSequence() int64  { return 0 }

// TransferTokens moves tokens from the actor to another holder.
type TransferTokens struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Recipient uuid.UUID `json:"recipient"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *TransferTokens) IdempotencyKey() string { return o.OpID.String() }
func (o *TransferTokens) OpType() OpType         { return OpTypeTransferTokens }
func (o *TransferTokens) ActorID() uuid.UUID     { return o.Actor }
func (o *TransferTokens) OccurredAt() time.Time  { return o.Timestamp }
func (o *TransferTokens) SourceSequence() int64  { return 0 }

// SetUnitPrice changes a token's primary-sale price. Issuer only.
type SetUnitPrice struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	UnitPrice int64     `json:"unit_price"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *SetUnitPrice) IdempotencyKey() string { return o.OpID.String() }
func (o *SetUnitPrice) OpType() OpType         { return OpTypeSetUnitPrice }
func (o *SetUnitPrice) ActorID() uuid.UUID     { return o.Actor }
func (o *SetUnitPrice) OccurredAt() time.Time  { return o.Timestamp }
func (o *SetUnitPrice) SourceSequence() int64  { return 0 }

// ConfirmDeposit credits a bridge-confirmed currency deposit. These arrive
// over the bridge stream and carry an upstream sequence per partition.
type ConfirmDeposit struct {
	DepositID uuid.UUID `json:"deposit_id"`
	Actor     uuid.UUID `json:"actor"`
	Amount    int64     `json:"amount"`
	Partition string    `json:"partition"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *ConfirmDeposit) IdempotencyKey() string { return o.DepositID.String() }
func (o *ConfirmDeposit) OpType() OpType         { return OpTypeConfirmDeposit }
func (o *ConfirmDeposit) ActorID() uuid.UUID     { return o.Actor }
func (o *ConfirmDeposit) OccurredAt() time.Time  { return o.Timestamp }
func (o *ConfirmDeposit) SourceSequence() int64  { return o.Sequence }
