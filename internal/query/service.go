package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FanLedger/internal/core"
	fpmath "FanLedger/internal/math"
)

// Service answers read requests. Live entity state (balances, tokens,
// listings, auctions, stakes) is read from the core through the gateway so
// it is always coherent with the last applied operation; history and
// integrity checks read Postgres. All responses carry as_of_sequence.
type Service struct {
	db *sql.DB
	gw *core.Gateway
}

func NewService(db *sql.DB, gw *core.Gateway) *Service {
	return &Service{db: db, gw: gw}
}

// displayAmount renders a smallest-unit amount as a decimal string.
func displayAmount(raw int64) string {
	return decimal.New(raw, -int32(fpmath.TokenDecimals)).String()
}

// GetBalance returns a holder's balance for a token, split by sub-account.
func (s *Service) GetBalance(ctx context.Context, holderID, tokenID uuid.UUID) (*BalanceResponse, error) {
	var resp BalanceResponse
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		resp = BalanceResponse{
			HolderID:     holderID,
			TokenID:      tokenID,
			Available:    c.Balances().GetAvailableBalance(holderID, tokenID),
			Staked:       c.Balances().GetStakedBalance(holderID, tokenID),
			AsOfSequence: c.GetSequence() - 1,
		}
	})
	if err != nil {
		return nil, err
	}

	resp.Total = resp.Available + resp.Staked
	resp.AvailableDisplay = displayAmount(resp.Available)
	resp.StakedDisplay = displayAmount(resp.Staked)
	resp.TotalDisplay = displayAmount(resp.Total)
	return &resp, nil
}

// GetToken returns a token's registry entry and circulating supply.
func (s *Service) GetToken(ctx context.Context, tokenID uuid.UUID) (*TokenResponse, error) {
	var resp *TokenResponse
	var lookupErr error
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		token, err := c.Tokens().Get(tokenID)
		if err != nil {
			lookupErr = err
			return
		}
		resp = &TokenResponse{
			TokenID:           token.ID,
			IssuerID:          token.IssuerID,
			Name:              token.Name,
			Symbol:            token.Symbol,
			SupplyCap:         token.SupplyCap,
			UnitPrice:         token.UnitPrice,
			PaymentTokenID:    token.PaymentTokenID,
			Benefits:          append([]string(nil), token.Benefits...),
			CirculatingSupply: token.CirculatingSupply,
			SupplyDisplay:     displayAmount(token.CirculatingSupply),
			AsOfSequence:      c.GetSequence() - 1,
		}
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, lookupErr
	}
	return resp, nil
}

// GetListing returns a marketplace listing.
func (s *Service) GetListing(ctx context.Context, listingID uuid.UUID) (*ListingResponse, error) {
	var resp *ListingResponse
	var lookupErr error
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		listing, err := c.Listings().Get(listingID)
		if err != nil {
			lookupErr = err
			return
		}
		resp = &ListingResponse{
			ListingID:    listing.ID,
			SellerID:     listing.SellerID,
			TokenID:      listing.TokenID,
			Remaining:    listing.Remaining,
			UnitPrice:    listing.UnitPrice,
			Status:       listing.Status.String(),
			AsOfSequence: c.GetSequence() - 1,
		}
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, lookupErr
	}
	return resp, nil
}

// GetAuction returns an auction with its live leading bid.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*AuctionResponse, error) {
	var resp *AuctionResponse
	var lookupErr error
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		auction, err := c.Auctions().Get(auctionID)
		if err != nil {
			lookupErr = err
			return
		}
		resp = &AuctionResponse{
			AuctionID:    auction.ID,
			SellerID:     auction.SellerID,
			TokenID:      auction.TokenID,
			LotAmount:    auction.LotAmount,
			ReservePrice: auction.ReservePrice,
			EndsAt:       auction.EndsAt.UnixMicro(),
			LeadBid:      auction.LeadBid,
			BidCount:     auction.BidCount,
			Status:       auction.Status.String(),
			AsOfSequence: c.GetSequence() - 1,
		}
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, lookupErr
	}
	return resp, nil
}

// GetStake returns a holder's staking position with rewards accrued up to
// the given query time.
func (s *Service) GetStake(ctx context.Context, holderID, tokenID uuid.UUID) (*StakeResponse, error) {
	var resp *StakeResponse
	var lookupErr error
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		staked := c.Balances().GetStakedBalance(holderID, tokenID)
		pending, err := c.Staking().PendingRewards(holderID, tokenID, time.Now())
		if err != nil {
			lookupErr = err
			return
		}
		resp = &StakeResponse{
			HolderID:       holderID,
			TokenID:        tokenID,
			Staked:         staked,
			PendingRewards: pending,
			RewardRate:     c.Staking().Rate(tokenID),
			AsOfSequence:   c.GetSequence() - 1,
		}
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, lookupErr
	}
	return resp, nil
}

// GetTradeHistory returns settled trades, newest first, with cursor
// pagination on sequence.
func (s *Service) GetTradeHistory(ctx context.Context, limit int, beforeSequence *int64) ([]TradeHistoryEntry, error) {
	query := `
		SELECT sequence, op_type, resource_id, buyer_id, value, fee, payout,
		       EXTRACT(EPOCH FROM timestamp)::bigint
		FROM projections.trade_history
	`
	args := []interface{}{}
	argIdx := 1

	if beforeSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeHistoryEntry
	for rows.Next() {
		var t TradeHistoryEntry
		if err := rows.Scan(
			&t.Sequence, &t.OpType, &t.ResourceID, &t.BuyerID,
			&t.Value, &t.Fee, &t.Payout, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetJournalHistory returns journal entries touching a holder's accounts,
// newest first, with cursor pagination.
func (s *Service) GetJournalHistory(ctx context.Context, holderID uuid.UUID, limit int, beforeSequence *int64) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", holderID)

	query := `
		SELECT journal_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, token_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.TokenID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks the hash chain in the event log and the per-token
// zero-sum invariant over all journal entries.
func (s *Service) VerifyIntegrity(ctx context.Context, fromSequence, toSequence int64) (*IntegrityReport, error) {
	report := &IntegrityReport{IsHealthy: true}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, state_hash, prev_hash
		FROM event_log.events
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence ASC
	`, fromSequence, toSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prevHash []byte
	var havePrev bool
	for rows.Next() {
		var seq int64
		var stateHash, rowPrevHash []byte
		if err := rows.Scan(&seq, &stateHash, &rowPrevHash); err != nil {
			return nil, err
		}
		if havePrev && !bytesEqual(rowPrevHash, prevHash) {
			report.IsHealthy = false
			report.HashChainBreaks = append(report.HashChainBreaks, seq)
		}
		prevHash = stateHash
		havePrev = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Per-token zero sum over the projected balances. The journal itself is
	// balanced row by row; a non-zero sum here means the projection drifted
	// from the log and needs a rebuild.
	sumRows, err := s.db.QueryContext(ctx, `
		SELECT token_id, SUM(balance)
		FROM projections.balances
		GROUP BY token_id
		HAVING SUM(balance) <> 0
	`)
	if err != nil {
		return nil, err
	}
	defer sumRows.Close()

	for sumRows.Next() {
		var tokenID string
		var imbalance int64
		if err := sumRows.Scan(&tokenID, &imbalance); err != nil {
			return nil, err
		}
		report.IsHealthy = false
		report.UnbalancedTokens = append(report.UnbalancedTokens, UnbalancedToken{
			TokenID:   tokenID,
			Imbalance: imbalance,
		})
	}
	return report, sumRows.Err()
}

// GetGlobalBalances returns the per-token global sums from the core; all
// must be zero on a healthy ledger.
func (s *Service) GetGlobalBalances(ctx context.Context) (map[uuid.UUID]int64, int64, error) {
	var sums map[uuid.UUID]int64
	var asOf int64
	err := s.gw.View(ctx, func(c *core.SettlementCore) {
		sums = c.Balances().ComputeGlobalBalance()
		asOf = c.GetSequence() - 1
	})
	return sums, asOf, err
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
