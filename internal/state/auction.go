package state

import (
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/ledger"
)

// AuctionStatus tracks an auction through its lifecycle. An auction is
// created open and reaches exactly one terminal state: settled when the
// lot sold, cancelled when it expired with no bids.
type AuctionStatus int32

const (
	AuctionOpen AuctionStatus = iota
	AuctionSettled
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionOpen:
		return "open"
	case AuctionSettled:
		return "settled"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Auction is an ascending-bid sale of an escrowed token lot. The escrow
// holds the lot plus at most the single leading bid.
type Auction struct {
	ID           uuid.UUID
	SellerID     uuid.UUID
	TokenID      uuid.UUID
	LotAmount    int64
	ReservePrice int64
	EndsAt       time.Time
	Status       AuctionStatus
	LeadBidder   uuid.UUID
	LeadBid      int64
	BidCount     int64
	CreatedAt    time.Time
}

// HasBid reports whether any bid has been accepted.
func (a *Auction) HasBid() bool {
	return a.BidCount > 0
}

// AuctionManager owns auction lifecycles. Duration bounds come from config
// and are fixed at construction.
type AuctionManager struct {
	auctions    map[uuid.UUID]*Auction
	minDuration time.Duration
	maxDuration time.Duration
}

func NewAuctionManager(minDuration, maxDuration time.Duration) *AuctionManager {
	return &AuctionManager{
		auctions:    make(map[uuid.UUID]*Auction),
		minDuration: minDuration,
		maxDuration: maxDuration,
	}
}

// Get returns an auction or a ResourceNotFound error.
func (am *AuctionManager) Get(id uuid.UUID) (*Auction, error) {
	auction, ok := am.auctions[id]
	if !ok {
		return nil, ledger.E(ledger.KindResourceNotFound, "auction %s not found", id)
	}
	return auction, nil
}

// CheckCreate validates auction parameters. The lot escrow batch is applied
// before CommitCreate registers the auction.
func (am *AuctionManager) CheckCreate(id uuid.UUID, lotAmount, reservePrice int64, duration time.Duration) error {
	if _, exists := am.auctions[id]; exists {
		return ledger.E(ledger.KindDuplicateOperation, "auction %s already exists", id)
	}
	if lotAmount <= 0 {
		return ledger.E(ledger.KindInvalidAmount, "lot amount must be positive: %d", lotAmount)
	}
	if reservePrice <= 0 {
		return ledger.E(ledger.KindInvalidAmount, "reserve price must be positive: %d", reservePrice)
	}
	if duration < am.minDuration || duration > am.maxDuration {
		return ledger.E(ledger.KindInvalidDuration,
			"duration %s outside [%s, %s]", duration, am.minDuration, am.maxDuration)
	}
	return nil
}

// CommitCreate registers the auction after its lot escrow settles.
func (am *AuctionManager) CommitCreate(id, sellerID, tokenID uuid.UUID, lotAmount, reservePrice int64, duration time.Duration, now time.Time) *Auction {
	auction := &Auction{
		ID:           id,
		SellerID:     sellerID,
		TokenID:      tokenID,
		LotAmount:    lotAmount,
		ReservePrice: reservePrice,
		EndsAt:       now.Add(duration),
		Status:       AuctionOpen,
		CreatedAt:    now,
	}
	am.auctions[id] = auction
	return auction
}

// CheckBid validates a bid against the auction state. Bids must strictly
// exceed the current price; before any bid the starting price is the current
// price, so a first bid equal to it is rejected.
func (am *AuctionManager) CheckBid(auctionID, bidderID uuid.UUID, amount int64, now time.Time) (*Auction, error) {
	auction, err := am.Get(auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != AuctionOpen {
		return nil, ledger.E(ledger.KindResourceInactive, "auction %s is %s", auctionID, auction.Status)
	}
	if !now.Before(auction.EndsAt) {
		return nil, ledger.E(ledger.KindAuctionExpired, "auction %s ended at %s", auctionID, auction.EndsAt.UTC())
	}
	if bidderID == auction.SellerID {
		return nil, ledger.E(ledger.KindUnauthorized, "seller cannot bid on own auction %s", auctionID)
	}
	current := auction.ReservePrice
	if auction.HasBid() {
		current = auction.LeadBid
	}
	if amount <= current {
		return nil, ledger.E(ledger.KindBidTooLow,
			"bid %d does not exceed current price %d on auction %s", amount, current, auctionID)
	}
	return auction, nil
}

// CommitBid installs a new leading bid after its escrow batch settles.
func (am *AuctionManager) CommitBid(auctionID, bidderID uuid.UUID, amount int64) {
	auction := am.auctions[auctionID]
	auction.LeadBidder = bidderID
	auction.LeadBid = amount
	auction.BidCount++
}

// CheckEnd validates settlement eligibility. Ending an auction already in a
// terminal state returns AlreadySettled so redelivered requests are harmless.
func (am *AuctionManager) CheckEnd(auctionID uuid.UUID, now time.Time) (*Auction, error) {
	auction, err := am.Get(auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != AuctionOpen {
		return nil, ledger.E(ledger.KindAlreadySettled, "auction %s already %s", auctionID, auction.Status)
	}
	if now.Before(auction.EndsAt) {
		return nil, ledger.E(ledger.KindAuctionNotYetExpired,
			"auction %s runs until %s", auctionID, auction.EndsAt.UTC())
	}
	return auction, nil
}

// CommitEnd moves the auction to its terminal state: settled when a bid
// won, cancelled when the lot went unclaimed.
func (am *AuctionManager) CommitEnd(auctionID uuid.UUID) {
	auction := am.auctions[auctionID]
	if auction.HasBid() {
		auction.Status = AuctionSettled
	} else {
		auction.Status = AuctionCancelled
	}
}

// Snapshot returns a deep copy of all auctions.
func (am *AuctionManager) Snapshot() map[uuid.UUID]Auction {
	out := make(map[uuid.UUID]Auction, len(am.auctions))
	for id, a := range am.auctions {
		out[id] = *a
	}
	return out
}

// Restore replaces all auctions from a snapshot.
func (am *AuctionManager) Restore(snapshot map[uuid.UUID]Auction) {
	am.auctions = make(map[uuid.UUID]*Auction, len(snapshot))
	for id, a := range snapshot {
		copied := a
		am.auctions[id] = &copied
	}
}
