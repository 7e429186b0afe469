package state

import (
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/ledger"
	fpmath "FanLedger/internal/math"
)

// ListingStatus tracks a listing through its lifecycle.
type ListingStatus int32

const (
	ListingActive ListingStatus = iota
	ListingFilled
	ListingCancelled
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "active"
	case ListingFilled:
		return "filled"
	case ListingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Listing is a single-price sell offer. Tokens are not escrowed; the
// seller's balance is re-checked when a buy settles.
type Listing struct {
	ID        uuid.UUID
	SellerID  uuid.UUID
	TokenID   uuid.UUID
	Remaining int64
	UnitPrice int64
	Status    ListingStatus
	CreatedAt time.Time
}

type sellerToken struct {
	seller uuid.UUID
	token  uuid.UUID
}

// ListingManager owns the marketplace order book. One active listing per
// seller and token; a second listing is rejected rather than replacing the
// first.
type ListingManager struct {
	listings map[uuid.UUID]*Listing
	active   map[sellerToken]uuid.UUID
}

func NewListingManager() *ListingManager {
	return &ListingManager{
		listings: make(map[uuid.UUID]*Listing),
		active:   make(map[sellerToken]uuid.UUID),
	}
}

// Get returns a listing or a ResourceNotFound error.
func (lm *ListingManager) Get(id uuid.UUID) (*Listing, error) {
	listing, ok := lm.listings[id]
	if !ok {
		return nil, ledger.E(ledger.KindResourceNotFound, "listing %s not found", id)
	}
	return listing, nil
}

// Create validates and registers a new listing.
func (lm *ListingManager) Create(id, sellerID, tokenID uuid.UUID, amount, unitPrice int64, now time.Time) (*Listing, error) {
	if _, exists := lm.listings[id]; exists {
		return nil, ledger.E(ledger.KindDuplicateOperation, "listing %s already exists", id)
	}
	if amount <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "listing amount must be positive: %d", amount)
	}
	if unitPrice <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "listing price must be positive: %d", unitPrice)
	}
	key := sellerToken{seller: sellerID, token: tokenID}
	if existing, ok := lm.active[key]; ok {
		return nil, ledger.E(ledger.KindAlreadyListed,
			"seller %s already has active listing %s for token %s", sellerID, existing, tokenID)
	}

	listing := &Listing{
		ID:        id,
		SellerID:  sellerID,
		TokenID:   tokenID,
		Remaining: amount,
		UnitPrice: unitPrice,
		Status:    ListingActive,
		CreatedAt: now,
	}
	lm.listings[id] = listing
	lm.active[key] = id
	return listing, nil
}

// CheckBuy validates a buy against an active listing and returns the listing
// and the trade value at the posted price. The fee split happens in the core
// where the fee rate lives.
func (lm *ListingManager) CheckBuy(listingID, buyerID uuid.UUID, amount int64) (*Listing, int64, error) {
	listing, err := lm.Get(listingID)
	if err != nil {
		return nil, 0, err
	}
	if listing.Status != ListingActive {
		return nil, 0, ledger.E(ledger.KindResourceInactive, "listing %s is %s", listingID, listing.Status)
	}
	if buyerID == listing.SellerID {
		return nil, 0, ledger.E(ledger.KindUnauthorized, "seller cannot buy own listing %s", listingID)
	}
	if amount <= 0 {
		return nil, 0, ledger.E(ledger.KindInvalidAmount, "buy amount must be positive: %d", amount)
	}
	if amount > listing.Remaining {
		return nil, 0, ledger.E(ledger.KindInvalidAmount,
			"buy amount %d exceeds remaining %d on listing %s", amount, listing.Remaining, listingID)
	}

	value, err := fpmath.TradeValue(amount, listing.UnitPrice)
	if err != nil {
		return nil, 0, ledger.E(ledger.KindArithmeticOverflow, "trade value overflows: %v", err)
	}
	return listing, value, nil
}

// CommitBuy decrements the remaining amount and retires the listing when it
// fills completely.
func (lm *ListingManager) CommitBuy(listingID uuid.UUID, amount int64) {
	listing := lm.listings[listingID]
	listing.Remaining -= amount
	if listing.Remaining == 0 {
		listing.Status = ListingFilled
		delete(lm.active, sellerToken{seller: listing.SellerID, token: listing.TokenID})
	}
}

// Cancel withdraws an active listing. Seller only.
func (lm *ListingManager) Cancel(listingID, actorID uuid.UUID) error {
	listing, err := lm.Get(listingID)
	if err != nil {
		return err
	}
	if listing.SellerID != actorID {
		return ledger.E(ledger.KindUnauthorized, "only the seller may cancel listing %s", listingID)
	}
	if listing.Status != ListingActive {
		return ledger.E(ledger.KindResourceInactive, "listing %s is %s", listingID, listing.Status)
	}
	listing.Status = ListingCancelled
	delete(lm.active, sellerToken{seller: listing.SellerID, token: listing.TokenID})
	return nil
}

// Snapshot returns a deep copy of all listings.
func (lm *ListingManager) Snapshot() map[uuid.UUID]Listing {
	out := make(map[uuid.UUID]Listing, len(lm.listings))
	for id, l := range lm.listings {
		out[id] = *l
	}
	return out
}

// Restore replaces all listings from a snapshot, rebuilding the active
// index.
func (lm *ListingManager) Restore(snapshot map[uuid.UUID]Listing) {
	lm.listings = make(map[uuid.UUID]*Listing, len(snapshot))
	lm.active = make(map[sellerToken]uuid.UUID)
	for id, l := range snapshot {
		copied := l
		lm.listings[id] = &copied
		if copied.Status == ListingActive {
			lm.active[sellerToken{seller: copied.SellerID, token: copied.TokenID}] = id
		}
	}
}
