package event

import (
	"time"

	"github.com/google/uuid"
)

// CreateListing puts a fixed amount of the actor's tokens up for sale at a
// single unit price. Tokens are not escrowed; the seller's balance is
// re-checked at buy time.
type CreateListing struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	ListingID uuid.UUID `json:"listing_id"`
	TokenID   uuid.UUID `json:"token_id"`
	Amount    int64     `json:"amount"`
	UnitPrice int64     `json:"unit_price"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *CreateListing) IdempotencyKey() string { return o.OpID.String() }
func (o *CreateListing) OpType() OpType         { return OpTypeCreateListing }
func (o *CreateListing) ActorID() uuid.UUID     { return o.Actor }
func (o *CreateListing) OccurredAt() time.Time  { return o.Timestamp }
func (o *CreateListing) SourceSequence() int64  { return 0 }

// BuyListing purchases part or all of a listing at its posted price.
type BuyListing struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	ListingID uuid.UUID `json:"listing_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *BuyListing) IdempotencyKey() string { return o.OpID.String() }
func (o *BuyListing) OpType() OpType         { return OpTypeBuyListing }
func (o *BuyListing) ActorID() uuid.UUID     { return o.Actor }
func (o *BuyListing) OccurredAt() time.Time  { return o.Timestamp }
func (o *BuyListing) SourceSequence() int64  { return 0 }

// CancelListing withdraws the actor's own listing from the market.
type CancelListing struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	ListingID uuid.UUID `json:"listing_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *CancelListing) IdempotencyKey() string { return o.OpID.String() }
func (o *CancelListing) OpType() OpType         { return OpTypeCancelListing }
func (o *CancelListing) ActorID() uuid.UUID     { return o.Actor }
func (o *CancelListing) OccurredAt() time.Time  { return o.Timestamp }
func (o *CancelListing) SourceSequence() int64  { return 0 }
