package query

import "github.com/google/uuid"

// BalanceResponse represents holder balance state for API queries. Raw
// values are smallest-unit counts; Display values are decimal strings.
type BalanceResponse struct {
	HolderID uuid.UUID `json:"holder_id"`
	TokenID  uuid.UUID `json:"token_id"`

	Available int64 `json:"available"`
	Staked    int64 `json:"staked"`
	Total     int64 `json:"total"`

	AvailableDisplay string `json:"available_display"`
	StakedDisplay    string `json:"staked_display"`
	TotalDisplay     string `json:"total_display"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// TokenResponse represents a token's registry entry plus supply state.
type TokenResponse struct {
	TokenID           uuid.UUID `json:"token_id"`
	IssuerID          uuid.UUID `json:"issuer_id"`
	Name              string    `json:"name"`
	Symbol            string    `json:"symbol"`
	SupplyCap         int64     `json:"supply_cap"`
	UnitPrice         int64     `json:"unit_price"`
	PaymentTokenID    uuid.UUID `json:"payment_token_id"`
	Benefits          []string  `json:"benefits,omitempty"`
	CirculatingSupply int64     `json:"circulating_supply"`
	SupplyDisplay     string    `json:"supply_display"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// ListingResponse represents a marketplace listing for API queries.
type ListingResponse struct {
	ListingID    uuid.UUID `json:"listing_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	TokenID      uuid.UUID `json:"token_id"`
	Remaining    int64     `json:"remaining"`
	UnitPrice    int64     `json:"unit_price"`
	Status       string    `json:"status"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// AuctionResponse represents an auction for API queries.
type AuctionResponse struct {
	AuctionID    uuid.UUID `json:"auction_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	TokenID      uuid.UUID `json:"token_id"`
	LotAmount    int64     `json:"lot_amount"`
	ReservePrice int64     `json:"reserve_price"`
	EndsAt       int64     `json:"ends_at"`
	LeadBid      int64     `json:"lead_bid"`
	BidCount     int64     `json:"bid_count"`
	Status       string    `json:"status"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// StakeResponse represents a staking position plus live accrual.
type StakeResponse struct {
	HolderID       uuid.UUID `json:"holder_id"`
	TokenID        uuid.UUID `json:"token_id"`
	Staked         int64     `json:"staked"`
	PendingRewards int64     `json:"pending_rewards"`
	RewardRate     int64     `json:"reward_rate"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// TradeHistoryEntry represents a settled trade for API queries.
type TradeHistoryEntry struct {
	Sequence   int64  `json:"sequence"`
	OpType     string `json:"op_type"`
	ResourceID string `json:"resource_id"`
	BuyerID    string `json:"buyer_id"`
	Value      int64  `json:"value"`
	Fee        int64  `json:"fee"`
	Payout     int64  `json:"payout"`
	Timestamp  int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	TokenID       string `json:"token_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an event-log integrity check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedTokens []UnbalancedToken `json:"unbalanced_tokens,omitempty"`
}

// UnbalancedToken represents a token with non-zero global balance sum.
type UnbalancedToken struct {
	TokenID   string `json:"token_id"`
	Imbalance int64  `json:"imbalance"`
}
