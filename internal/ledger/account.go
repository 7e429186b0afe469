package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope is the top-level owner class of an account.
type AccountScope uint8

const (
	ScopeUser AccountScope = iota + 1
	ScopeSystem
	ScopeEscrow
	ScopeExternal
)

func (s AccountScope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeSystem:
		return "system"
	case ScopeEscrow:
		return "escrow"
	case ScopeExternal:
		return "external"
	default:
		return "invalid"
	}
}

// AccountSubType distinguishes balances within a scope.
type AccountSubType uint8

const (
	// User sub-accounts.
	SubAvailable AccountSubType = iota + 1
	SubStaked

	// Escrow sub-accounts. EntityID identifies the auction lot.
	SubAuctionLot
	SubAuctionBid

	// System sub-accounts.
	SubFeeSink
	SubRewardReserve

	// External sub-accounts. Counterparties outside the ledger; these
	// carry negative balances so every token nets to zero.
	SubMint
	SubDeposits
)

func (t AccountSubType) String() string {
	switch t {
	case SubAvailable:
		return "available"
	case SubStaked:
		return "staked"
	case SubAuctionLot:
		return "auction_lot"
	case SubAuctionBid:
		return "auction_bid"
	case SubFeeSink:
		return "fee_sink"
	case SubRewardReserve:
		return "reward_reserve"
	case SubMint:
		return "mint"
	case SubDeposits:
		return "deposits"
	default:
		return "invalid"
	}
}

// AccountKey uniquely identifies a balance bucket. It is a fixed-size value
// type so it can key the in-memory balance map directly.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte
	SubType  AccountSubType
	TokenID  [16]byte
}

// NewUserAccountKey addresses a holder's balance in one token.
func NewUserAccountKey(holderID uuid.UUID, sub AccountSubType, tokenID uuid.UUID) AccountKey {
	return AccountKey{Scope: ScopeUser, EntityID: holderID, SubType: sub, TokenID: tokenID}
}

// NewEscrowAccountKey addresses escrow held on behalf of an auction.
func NewEscrowAccountKey(auctionID uuid.UUID, sub AccountSubType, tokenID uuid.UUID) AccountKey {
	return AccountKey{Scope: ScopeEscrow, EntityID: auctionID, SubType: sub, TokenID: tokenID}
}

// NewSystemAccountKey addresses a ledger-wide system balance. EntityID is
// zero; there is exactly one system account per sub-type and token.
func NewSystemAccountKey(sub AccountSubType, tokenID uuid.UUID) AccountKey {
	return AccountKey{Scope: ScopeSystem, SubType: sub, TokenID: tokenID}
}

// NewExternalAccountKey addresses an off-ledger counterparty. The mint
// account's negative balance equals a token's circulating supply.
func NewExternalAccountKey(sub AccountSubType, tokenID uuid.UUID) AccountKey {
	return AccountKey{Scope: ScopeExternal, SubType: sub, TokenID: tokenID}
}

// AccountPath renders a key for logs and query responses.
func (k AccountKey) AccountPath() string {
	entity := uuid.UUID(k.EntityID)
	token := uuid.UUID(k.TokenID)
	if k.Scope == ScopeSystem || k.Scope == ScopeExternal {
		return fmt.Sprintf("%s:%s:%s", k.Scope, k.SubType, token)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Scope, entity, k.SubType, token)
}
