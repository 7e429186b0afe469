package event

import (
	"time"

	"github.com/google/uuid"
)

// Stake locks the actor's tokens into the staking pool. Accrual is
// time-weighted from this operation's timestamp.
type Stake struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *Stake) IdempotencyKey() string { return o.OpID.String() }
func (o *Stake) OpType() OpType         { return OpTypeStake }
func (o *Stake) ActorID() uuid.UUID     { return o.Actor }
func (o *Stake) OccurredAt() time.Time  { return o.Timestamp }
func (o *Stake) SourceSequence() int64  { return 0 }

// Unstake releases part or all of the actor's stake. Accrued rewards up to
// this operation's timestamp are preserved for a later claim.
type Unstake struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *Unstake) IdempotencyKey() string { return o.OpID.String() }
func (o *Unstake) OpType() OpType         { return OpTypeUnstake }
func (o *Unstake) ActorID() uuid.UUID     { return o.Actor }
func (o *Unstake) OccurredAt() time.Time  { return o.Timestamp }
func (o *Unstake) SourceSequence() int64  { return 0 }

// ClaimRewards pays out the actor's accrued rewards net of the protocol cut.
type ClaimRewards struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *ClaimRewards) IdempotencyKey() string { return o.OpID.String() }
func (o *ClaimRewards) OpType() OpType         { return OpTypeClaimRewards }
func (o *ClaimRewards) ActorID() uuid.UUID     { return o.Actor }
func (o *ClaimRewards) OccurredAt() time.Time  { return o.Timestamp }
func (o *ClaimRewards) SourceSequence() int64  { return 0 }

// SetRewardRate changes a token pool's accrual rate. Prospective only;
// rewards already accrued keep the old rate.
type SetRewardRate struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Rate      int64     `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *SetRewardRate) IdempotencyKey() string { return o.OpID.String() }
func (o *SetRewardRate) OpType() OpType         { return OpTypeSetRewardRate }
func (o *SetRewardRate) ActorID() uuid.UUID     { return o.Actor }
func (o *SetRewardRate) OccurredAt() time.Time  { return o.Timestamp }
func (o *SetRewardRate) SourceSequence() int64  { return 0 }

// FundRewardReserve moves currency from the actor's balance into a pool's
// reward reserve. TokenID names the staking pool being funded; the reserve
// is held in that token's payment currency. uuid.Nil funds the quote
// currency reserve directly.
type FundRewardReserve struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	TokenID   uuid.UUID `json:"token_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *FundRewardReserve) IdempotencyKey() string { return o.OpID.String() }
func (o *FundRewardReserve) OpType() OpType         { return OpTypeFundRewardReserve }
func (o *FundRewardReserve) ActorID() uuid.UUID     { return o.Actor }
func (o *FundRewardReserve) OccurredAt() time.Time  { return o.Timestamp }
func (o *FundRewardReserve) SourceSequence() int64  { return 0 }
