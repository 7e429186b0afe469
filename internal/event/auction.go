package event

import (
	"time"

	"github.com/google/uuid"
)

// CreateAuction opens an ascending-bid auction over a lot of the actor's
// tokens. The lot is escrowed for the auction's lifetime.
type CreateAuction struct {
	OpID         uuid.UUID `json:"op_id"`
	Actor        uuid.UUID `json:"actor"`
	AuctionID    uuid.UUID `json:"auction_id"`
	TokenID      uuid.UUID `json:"token_id"`
	LotAmount    int64     `json:"lot_amount"`
	ReservePrice int64     `json:"reserve_price"`
	Duration     int64     `json:"duration_seconds"`
	Timestamp    time.Time `json:"timestamp"`
}

func (o *CreateAuction) IdempotencyKey() string { return o.OpID.String() }
func (o *CreateAuction) OpType() OpType         { return OpTypeCreateAuction }
func (o *CreateAuction) ActorID() uuid.UUID     { return o.Actor }
func (o *CreateAuction) OccurredAt() time.Time  { return o.Timestamp }
func (o *CreateAuction) SourceSequence() int64  { return 0 }

// PlaceBid escrows the actor's bid; a displaced leader is refunded in the
// same settlement batch.
type PlaceBid struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	AuctionID uuid.UUID `json:"auction_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *PlaceBid) IdempotencyKey() string { return o.OpID.String() }
func (o *PlaceBid) OpType() OpType         { return OpTypePlaceBid }
func (o *PlaceBid) ActorID() uuid.UUID     { return o.Actor }
func (o *PlaceBid) OccurredAt() time.Time  { return o.Timestamp }
func (o *PlaceBid) SourceSequence() int64  { return 0 }

// EndAuction settles an expired auction: lot to the winner and escrowed bid
// to the seller net of the protocol fee, or lot back to the seller when no
// bid met the reserve. Anyone may submit this once the deadline passes.
type EndAuction struct {
	OpID      uuid.UUID `json:"op_id"`
	Actor     uuid.UUID `json:"actor"`
	AuctionID uuid.UUID `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *EndAuction) IdempotencyKey() string { return o.OpID.String() }
func (o *EndAuction) OpType() OpType         { return OpTypeEndAuction }
func (o *EndAuction) ActorID() uuid.UUID     { return o.Actor }
func (o *EndAuction) OccurredAt() time.Time  { return o.Timestamp }
func (o *EndAuction) SourceSequence() int64  { return 0 }
