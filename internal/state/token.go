package state

import (
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/ledger"
	fpmath "FanLedger/internal/math"
)

// CurrencyID is the quote currency every payment leg settles in. It is a
// fixed namespace UUID so replicas and replays agree on the account keys.
var CurrencyID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("fanledger/currency"))

// Token is a registered fan token. Identity fields are immutable after
// issuance; only UnitPrice and CirculatingSupply change.
type Token struct {
	ID                uuid.UUID
	IssuerID          uuid.UUID
	Name              string
	Symbol            string
	SupplyCap         int64
	UnitPrice         int64
	PaymentTokenID    uuid.UUID
	Benefits          []string
	CirculatingSupply int64
	CreatedAt         time.Time
}

// TokenManager owns the token registry. All methods run on the core's
// single apply goroutine; no locking.
type TokenManager struct {
	tokens map[uuid.UUID]*Token
}

func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[uuid.UUID]*Token),
	}
}

// IssueParams carries the immutable identity of a new token.
type IssueParams struct {
	ID             uuid.UUID
	IssuerID       uuid.UUID
	Name           string
	Symbol         string
	SupplyCap      int64
	UnitPrice      int64
	PaymentTokenID uuid.UUID
	Benefits       []string
}

// Issue registers a new token. The payment token must be the quote currency
// or an already-issued token.
func (tm *TokenManager) Issue(p IssueParams, now time.Time) (*Token, error) {
	if _, exists := tm.tokens[p.ID]; exists {
		return nil, ledger.E(ledger.KindDuplicateOperation, "token %s already issued", p.ID)
	}
	if p.ID == CurrencyID {
		return nil, ledger.E(ledger.KindInvalidAmount, "token id collides with quote currency")
	}
	if p.Name == "" || p.Symbol == "" {
		return nil, ledger.E(ledger.KindInvalidAmount, "token name and symbol are required")
	}
	if p.SupplyCap <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "supply cap must be positive: %d", p.SupplyCap)
	}
	if p.UnitPrice <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "unit price must be positive: %d", p.UnitPrice)
	}
	if p.PaymentTokenID == p.ID {
		return nil, ledger.E(ledger.KindInvalidAmount, "token cannot be its own payment token")
	}
	if p.PaymentTokenID != CurrencyID {
		if _, ok := tm.tokens[p.PaymentTokenID]; !ok {
			return nil, ledger.E(ledger.KindResourceNotFound, "payment token %s not found", p.PaymentTokenID)
		}
	}

	token := &Token{
		ID:             p.ID,
		IssuerID:       p.IssuerID,
		Name:           p.Name,
		Symbol:         p.Symbol,
		SupplyCap:      p.SupplyCap,
		UnitPrice:      p.UnitPrice,
		PaymentTokenID: p.PaymentTokenID,
		Benefits:       append([]string(nil), p.Benefits...),
		CreatedAt:      now,
	}
	tm.tokens[p.ID] = token
	return token, nil
}

// Get returns a token or a ResourceNotFound error.
func (tm *TokenManager) Get(id uuid.UUID) (*Token, error) {
	token, ok := tm.tokens[id]
	if !ok {
		return nil, ledger.E(ledger.KindResourceNotFound, "token %s not found", id)
	}
	return token, nil
}

// CheckPurchase validates a primary-sale mint against the supply cap and
// returns the payment value at the current unit price.
func (tm *TokenManager) CheckPurchase(tokenID uuid.UUID, amount int64) (*Token, int64, error) {
	token, err := tm.Get(tokenID)
	if err != nil {
		return nil, 0, err
	}
	if amount <= 0 {
		return nil, 0, ledger.E(ledger.KindInvalidAmount, "purchase amount must be positive: %d", amount)
	}

	remaining := token.SupplyCap - token.CirculatingSupply
	if amount > remaining {
		return nil, 0, ledger.E(ledger.KindSupplyExceeded,
			"purchase of %d exceeds remaining supply %d for token %s", amount, remaining, tokenID)
	}

	value, err := fpmath.TradeValue(amount, token.UnitPrice)
	if err != nil {
		return nil, 0, ledger.E(ledger.KindArithmeticOverflow, "purchase value overflows: %v", err)
	}
	return token, value, nil
}

// CommitPurchase records the minted supply. Preconditions were established
// by CheckPurchase in the same apply cycle.
func (tm *TokenManager) CommitPurchase(tokenID uuid.UUID, amount int64) {
	tm.tokens[tokenID].CirculatingSupply += amount
}

// SetUnitPrice changes the primary-sale price. Issuer only.
func (tm *TokenManager) SetUnitPrice(tokenID, actorID uuid.UUID, unitPrice int64) error {
	token, err := tm.Get(tokenID)
	if err != nil {
		return err
	}
	if token.IssuerID != actorID {
		return ledger.E(ledger.KindUnauthorized, "only the issuer may reprice token %s", tokenID)
	}
	if unitPrice <= 0 {
		return ledger.E(ledger.KindInvalidAmount, "unit price must be positive: %d", unitPrice)
	}
	token.UnitPrice = unitPrice
	return nil
}

// Snapshot returns a deep copy of the registry (for state hashing and
// snapshot persistence).
func (tm *TokenManager) Snapshot() map[uuid.UUID]Token {
	out := make(map[uuid.UUID]Token, len(tm.tokens))
	for id, t := range tm.tokens {
		copied := *t
		copied.Benefits = append([]string(nil), t.Benefits...)
		out[id] = copied
	}
	return out
}

// Restore replaces the registry from a snapshot (recovery path).
func (tm *TokenManager) Restore(snapshot map[uuid.UUID]Token) {
	tm.tokens = make(map[uuid.UUID]*Token, len(snapshot))
	for id, t := range snapshot {
		copied := t
		tm.tokens[id] = &copied
	}
}
