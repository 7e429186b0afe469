package core_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/core"
	"FanLedger/internal/event"
	"FanLedger/internal/ledger"
	"FanLedger/internal/state"
)

// --- Test helpers ---

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestCore creates a SettlementCore with buffered channels and no DB checker.
func newTestCore(feeBps int64) (*core.SettlementCore, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	cfg := core.Config{
		StartSequence:       0,
		FeeBps:              feeBps,
		MinAuctionDuration:  time.Minute,
		MaxAuctionDuration:  30 * 24 * time.Hour,
		IdempotencyCapacity: 1024,
	}
	return core.NewSettlementCore(cfg, persistChan, projChan, nil, nil), persistChan
}

func mustApply(t *testing.T, c *core.SettlementCore, op event.Operation) *core.Receipt {
	t.Helper()
	receipt, err := c.Apply(op)
	if err != nil {
		t.Fatalf("apply %s failed: %v", op.OpType(), err)
	}
	return receipt
}

func mustFail(t *testing.T, c *core.SettlementCore, op event.Operation, want ledger.Kind) {
	t.Helper()
	if _, err := c.Apply(op); !ledger.IsKind(err, want) {
		t.Fatalf("apply %s: want kind %v, got %v", op.OpType(), want, err)
	}
}

func deposit(holder uuid.UUID, amount, seq int64) *event.ConfirmDeposit {
	return &event.ConfirmDeposit{
		DepositID: uuid.New(),
		Actor:     holder,
		Amount:    amount,
		Partition: "0",
		Sequence:  seq,
		Timestamp: baseTime.Add(time.Duration(seq) * time.Millisecond),
	}
}

func issueToken(issuer, tokenID uuid.UUID, cap, price int64) *event.IssueToken {
	return &event.IssueToken{
		OpID:      uuid.New(),
		Actor:     issuer,
		TokenID:   tokenID,
		Name:      "Test Club",
		Symbol:    "TST",
		SupplyCap: cap,
		UnitPrice: price,
		Timestamp: baseTime,
	}
}

func purchase(buyer, tokenID uuid.UUID, amount int64) *event.PurchaseTokens {
	return &event.PurchaseTokens{
		OpID:      uuid.New(),
		Actor:     buyer,
		TokenID:   tokenID,
		Amount:    amount,
		Timestamp: baseTime,
	}
}

// setupFundedToken issues a token and purchases `amount` of it for `holder`,
// funding the holder with `funds` currency first.
func setupFundedToken(t *testing.T, c *core.SettlementCore, issuer, holder, tokenID uuid.UUID, amount, price, funds int64) {
	t.Helper()
	mustApply(t, c, deposit(holder, funds, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1_000_000, price))
	mustApply(t, c, purchase(holder, tokenID, amount))
}

// ==========================================================================
// Primary sales
// ==========================================================================

func TestPurchaseMintsAndPays(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, deposit(buyer, 5000, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1000, 12))
	receipt := mustApply(t, c, purchase(buyer, tokenID, 100))

	if receipt.Amounts["minted"] != 100 || receipt.Amounts["paid"] != 1200 {
		t.Errorf("receipt amounts = %v, want minted=100 paid=1200", receipt.Amounts)
	}
	if got := c.Balances().GetAvailableBalance(buyer, tokenID); got != 100 {
		t.Errorf("buyer token balance = %d, want 100", got)
	}
	if got := c.Balances().GetAvailableBalance(buyer, state.CurrencyID); got != 3800 {
		t.Errorf("buyer currency balance = %d, want 3800", got)
	}
	if got := c.Balances().GetAvailableBalance(issuer, state.CurrencyID); got != 1200 {
		t.Errorf("issuer currency balance = %d, want 1200", got)
	}
	if got := c.Balances().GetCirculatingSupply(tokenID); got != 100 {
		t.Errorf("circulating supply = %d, want 100", got)
	}

	token, err := c.Tokens().Get(tokenID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if token.CirculatingSupply != 100 {
		t.Errorf("registry supply = %d, want 100", token.CirculatingSupply)
	}
}

func TestPurchaseBeyondCapRejected(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, deposit(buyer, 100_000, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1000, 10))
	mustApply(t, c, purchase(buyer, tokenID, 900))

	mustFail(t, c, purchase(buyer, tokenID, 101), ledger.KindSupplyExceeded)

	// Exactly up to the cap still settles.
	mustApply(t, c, purchase(buyer, tokenID, 100))
	if got := c.Balances().GetCirculatingSupply(tokenID); got != 1000 {
		t.Errorf("circulating supply = %d, want 1000", got)
	}
}

func TestPurchaseWithoutFundsLeavesStateUntouched(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, deposit(buyer, 100, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1000, 12))
	seqBefore := c.GetSequence()

	mustFail(t, c, purchase(buyer, tokenID, 100), ledger.KindInsufficientFunds)

	if got := c.GetSequence(); got != seqBefore {
		t.Errorf("sequence advanced on rejected op: %d -> %d", seqBefore, got)
	}
	if got := c.Balances().GetAvailableBalance(buyer, state.CurrencyID); got != 100 {
		t.Errorf("buyer currency balance = %d, want 100", got)
	}
	if got := c.Balances().GetCirculatingSupply(tokenID); got != 0 {
		t.Errorf("circulating supply = %d, want 0", got)
	}
}

// ==========================================================================
// Marketplace
// ==========================================================================

func TestBuyListingFeeExactness(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()
	listingID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 200, 10, 5000)
	mustApply(t, c, deposit(buyer, 2000, 2))

	mustApply(t, c, &event.CreateListing{
		OpID: uuid.New(), Actor: seller, ListingID: listingID,
		TokenID: tokenID, Amount: 150, UnitPrice: 12, Timestamp: baseTime,
	})
	receipt := mustApply(t, c, &event.BuyListing{
		OpID: uuid.New(), Actor: buyer, ListingID: listingID,
		Amount: 100, Timestamp: baseTime,
	})

	// 100 * 12 = 1200 at 250 bps: fee 30, payout 1170.
	if receipt.Amounts["value"] != 1200 || receipt.Amounts["fee"] != 30 || receipt.Amounts["payout"] != 1170 {
		t.Errorf("receipt amounts = %v, want value=1200 fee=30 payout=1170", receipt.Amounts)
	}
	if got := c.Balances().GetAvailableBalance(buyer, tokenID); got != 100 {
		t.Errorf("buyer token balance = %d, want 100", got)
	}
	if got := c.Balances().GetAvailableBalance(buyer, state.CurrencyID); got != 800 {
		t.Errorf("buyer currency balance = %d, want 800", got)
	}
	if got := c.Balances().GetFeeSinkBalance(state.CurrencyID); got != 30 {
		t.Errorf("fee sink = %d, want 30", got)
	}

	// Partial fill leaves the listing active with 50 remaining.
	listing, err := c.Listings().Get(listingID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Remaining != 50 || listing.Status != state.ListingActive {
		t.Errorf("listing remaining=%d status=%v, want 50 active", listing.Remaining, listing.Status)
	}
}

func TestSecondActiveListingRejected(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	tokenID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 200, 10, 5000)

	mustApply(t, c, &event.CreateListing{
		OpID: uuid.New(), Actor: seller, ListingID: uuid.New(),
		TokenID: tokenID, Amount: 50, UnitPrice: 12, Timestamp: baseTime,
	})
	mustFail(t, c, &event.CreateListing{
		OpID: uuid.New(), Actor: seller, ListingID: uuid.New(),
		TokenID: tokenID, Amount: 10, UnitPrice: 15, Timestamp: baseTime,
	}, ledger.KindAlreadyListed)
}

func TestBuyFromDrainedSellerRejected(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()
	other := uuid.New()
	tokenID := uuid.New()
	listingID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 100, 10, 5000)
	mustApply(t, c, deposit(buyer, 5000, 2))

	mustApply(t, c, &event.CreateListing{
		OpID: uuid.New(), Actor: seller, ListingID: listingID,
		TokenID: tokenID, Amount: 100, UnitPrice: 12, Timestamp: baseTime,
	})
	// The seller moves the tokens away after listing; the buy must re-check
	// the live balance and fail without touching anything.
	mustApply(t, c, &event.TransferTokens{
		OpID: uuid.New(), Actor: seller, TokenID: tokenID,
		Recipient: other, Amount: 100, Timestamp: baseTime,
	})
	mustFail(t, c, &event.BuyListing{
		OpID: uuid.New(), Actor: buyer, ListingID: listingID,
		Amount: 100, Timestamp: baseTime,
	}, ledger.KindInsufficientBalance)

	if got := c.Balances().GetAvailableBalance(buyer, state.CurrencyID); got != 5000 {
		t.Errorf("buyer currency balance = %d, want 5000", got)
	}
}

// ==========================================================================
// Auction house
// ==========================================================================

func TestAuctionDisplacedBidRefund(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	bidderA := uuid.New()
	bidderB := uuid.New()
	tokenID := uuid.New()
	auctionID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 50, 10, 5000)
	mustApply(t, c, deposit(bidderA, 1000, 2))
	mustApply(t, c, deposit(bidderB, 1000, 3))

	mustApply(t, c, &event.CreateAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		TokenID: tokenID, LotAmount: 50, ReservePrice: 100,
		Duration: 3600, Timestamp: baseTime,
	})
	if got := c.Balances().GetEscrowBalance(auctionID, ledger.SubAuctionLot, tokenID); got != 50 {
		t.Fatalf("lot escrow = %d, want 50", got)
	}

	mustApply(t, c, &event.PlaceBid{
		OpID: uuid.New(), Actor: bidderA, AuctionID: auctionID,
		Amount: 110, Timestamp: baseTime.Add(time.Minute),
	})
	receipt := mustApply(t, c, &event.PlaceBid{
		OpID: uuid.New(), Actor: bidderB, AuctionID: auctionID,
		Amount: 150, Timestamp: baseTime.Add(2 * time.Minute),
	})

	if receipt.Amounts["bid"] != 150 || receipt.Amounts["refunded"] != 110 {
		t.Errorf("receipt amounts = %v, want bid=150 refunded=110", receipt.Amounts)
	}
	if got := c.Balances().GetAvailableBalance(bidderA, state.CurrencyID); got != 1000 {
		t.Errorf("displaced bidder balance = %d, want 1000", got)
	}
	if got := c.Balances().GetEscrowBalance(auctionID, ledger.SubAuctionBid, state.CurrencyID); got != 150 {
		t.Errorf("bid escrow = %d, want 150", got)
	}
}

func TestAuctionSettlementDrainsEscrow(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	bidder := uuid.New()
	tokenID := uuid.New()
	auctionID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 50, 10, 5000)
	mustApply(t, c, deposit(bidder, 1000, 2))

	mustApply(t, c, &event.CreateAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		TokenID: tokenID, LotAmount: 50, ReservePrice: 100,
		Duration: 3600, Timestamp: baseTime,
	})
	mustApply(t, c, &event.PlaceBid{
		OpID: uuid.New(), Actor: bidder, AuctionID: auctionID,
		Amount: 150, Timestamp: baseTime.Add(time.Minute),
	})

	// Before expiry the settle is rejected.
	mustFail(t, c, &event.EndAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		Timestamp: baseTime.Add(30 * time.Minute),
	}, ledger.KindAuctionNotYetExpired)

	sellerBefore := c.Balances().GetAvailableBalance(seller, state.CurrencyID)
	receipt := mustApply(t, c, &event.EndAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		Timestamp: baseTime.Add(2 * time.Hour),
	})

	// 150 at 250 bps: fee 3 (floored), payout 147.
	if receipt.Amounts["winning_bid"] != 150 || receipt.Amounts["fee"] != 3 || receipt.Amounts["payout"] != 147 {
		t.Errorf("receipt amounts = %v, want winning_bid=150 fee=3 payout=147", receipt.Amounts)
	}
	if got := c.Balances().GetAvailableBalance(bidder, tokenID); got != 50 {
		t.Errorf("winner lot = %d, want 50", got)
	}
	if got := c.Balances().GetAvailableBalance(seller, state.CurrencyID); got != sellerBefore+147 {
		t.Errorf("seller payout = %d, want %d", got, sellerBefore+147)
	}
	if got := c.Balances().GetEscrowBalance(auctionID, ledger.SubAuctionLot, tokenID); got != 0 {
		t.Errorf("lot escrow residual = %d", got)
	}
	if got := c.Balances().GetEscrowBalance(auctionID, ledger.SubAuctionBid, state.CurrencyID); got != 0 {
		t.Errorf("bid escrow residual = %d", got)
	}

	// Settling again under a fresh op id is idempotent at the domain level.
	mustFail(t, c, &event.EndAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		Timestamp: baseTime.Add(3 * time.Hour),
	}, ledger.KindAlreadySettled)
}

func TestAuctionNoBidReclaim(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	seller := uuid.New()
	tokenID := uuid.New()
	auctionID := uuid.New()

	setupFundedToken(t, c, issuer, seller, tokenID, 50, 10, 5000)

	mustApply(t, c, &event.CreateAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		TokenID: tokenID, LotAmount: 50, ReservePrice: 100,
		Duration: 3600, Timestamp: baseTime,
	})
	receipt := mustApply(t, c, &event.EndAuction{
		OpID: uuid.New(), Actor: seller, AuctionID: auctionID,
		Timestamp: baseTime.Add(2 * time.Hour),
	})

	if receipt.Amounts["reclaimed"] != 50 {
		t.Errorf("receipt amounts = %v, want reclaimed=50", receipt.Amounts)
	}
	if got := c.Balances().GetAvailableBalance(seller, tokenID); got != 50 {
		t.Errorf("seller lot after reclaim = %d, want 50", got)
	}
}

// ==========================================================================
// Staking
// ==========================================================================

func TestStakingAccrualAndClaim(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	staker := uuid.New()
	funder := uuid.New()
	tokenID := uuid.New()

	setupFundedToken(t, c, issuer, staker, tokenID, 2000, 1, 5000)
	mustApply(t, c, deposit(funder, 10_000, 2))
	mustApply(t, c, &event.FundRewardReserve{
		OpID: uuid.New(), Actor: funder, Amount: 10_000, Timestamp: baseTime,
	})

	// 0.001 currency per token-second.
	mustApply(t, c, &event.SetRewardRate{
		OpID: uuid.New(), Actor: issuer, TokenID: tokenID,
		Rate: 1_000_000_000, Timestamp: baseTime,
	})
	mustApply(t, c, &event.Stake{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Amount: 2000, Timestamp: baseTime,
	})

	if got := c.Balances().GetStakedBalance(staker, tokenID); got != 2000 {
		t.Fatalf("staked balance = %d, want 2000", got)
	}
	if got := c.Balances().GetAvailableBalance(staker, tokenID); got != 0 {
		t.Fatalf("available after stake = %d, want 0", got)
	}

	// 2000 tokens * 0.001/s * 500s = 1000 accrued. At 250 bps the claim
	// pays 975 and the protocol keeps 25.
	receipt := mustApply(t, c, &event.ClaimRewards{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Timestamp: baseTime.Add(500 * time.Second),
	})
	if receipt.Amounts["accrued"] != 1000 || receipt.Amounts["fee"] != 25 || receipt.Amounts["payout"] != 975 {
		t.Errorf("receipt amounts = %v, want accrued=1000 fee=25 payout=975", receipt.Amounts)
	}
	if got := c.Balances().GetRewardReserve(state.CurrencyID); got != 9000 {
		t.Errorf("reward reserve = %d, want 9000", got)
	}

	// Immediately claiming again finds nothing accrued.
	mustFail(t, c, &event.ClaimRewards{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Timestamp: baseTime.Add(500 * time.Second),
	}, ledger.KindInvalidAmount)
}

func TestClaimBeyondReserveRejected(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	staker := uuid.New()
	tokenID := uuid.New()

	setupFundedToken(t, c, issuer, staker, tokenID, 2000, 1, 5000)
	mustApply(t, c, &event.FundRewardReserve{
		OpID: uuid.New(), Actor: staker, Amount: 100, Timestamp: baseTime,
	})
	mustApply(t, c, &event.SetRewardRate{
		OpID: uuid.New(), Actor: issuer, TokenID: tokenID,
		Rate: 1_000_000_000, Timestamp: baseTime,
	})
	mustApply(t, c, &event.Stake{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Amount: 2000, Timestamp: baseTime,
	})

	// 1000 accrued against a 100 reserve.
	mustFail(t, c, &event.ClaimRewards{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Timestamp: baseTime.Add(500 * time.Second),
	}, ledger.KindInsufficientRewardReserve)
}

func TestAccrualOverflowRejectedAsNoOp(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	staker := uuid.New()
	tokenID := uuid.New()

	huge := int64(9_000_000_000_000_000_000)
	mustApply(t, c, deposit(staker, huge, 1))
	mustApply(t, c, issueToken(issuer, tokenID, huge, 1))
	mustApply(t, c, purchase(staker, tokenID, huge))

	// 1.0 currency per token-second.
	mustApply(t, c, &event.SetRewardRate{
		OpID: uuid.New(), Actor: issuer, TokenID: tokenID,
		Rate: 1_000_000_000_000, Timestamp: baseTime,
	})
	mustApply(t, c, &event.Stake{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Amount: huge, Timestamp: baseTime,
	})

	// Two seconds of accrual on this position exceeds int64. The unstake
	// must be rejected before any batch is generated, leaving the position
	// and the escrow untouched.
	mustFail(t, c, &event.Unstake{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Amount: 1, Timestamp: baseTime.Add(2 * time.Second),
	}, ledger.KindArithmeticOverflow)
	mustFail(t, c, &event.Stake{
		OpID: uuid.New(), Actor: staker, TokenID: tokenID,
		Amount: 1, Timestamp: baseTime.Add(2 * time.Second),
	}, ledger.KindArithmeticOverflow)

	if got := c.Balances().GetStakedBalance(staker, tokenID); got != huge {
		t.Errorf("staked balance = %d, want %d", got, huge)
	}
}

func TestRewardRateIssuerOnly(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	other := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, issueToken(issuer, tokenID, 1000, 10))
	mustFail(t, c, &event.SetRewardRate{
		OpID: uuid.New(), Actor: other, TokenID: tokenID,
		Rate: 1_000_000_000, Timestamp: baseTime,
	}, ledger.KindUnauthorized)
}

// ==========================================================================
// Idempotency & ordering
// ==========================================================================

func TestDuplicateOperationRejected(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, deposit(buyer, 5000, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1000, 12))

	op := purchase(buyer, tokenID, 100)
	mustApply(t, c, op)
	mustFail(t, c, op, ledger.KindDuplicateOperation)

	// The replay settled nothing.
	if got := c.Balances().GetCirculatingSupply(tokenID); got != 100 {
		t.Errorf("circulating supply = %d, want 100", got)
	}
}

func TestBridgeSequenceGapRejected(t *testing.T) {
	c, _ := newTestCore(250)
	holder := uuid.New()

	mustApply(t, c, deposit(holder, 100, 1))

	// Gap: next expected is 2.
	if _, err := c.Apply(deposit(holder, 100, 3)); err == nil {
		t.Fatal("gapped bridge sequence accepted")
	}
	mustApply(t, c, deposit(holder, 100, 2))

	if got := c.Balances().GetAvailableBalance(holder, state.CurrencyID); got != 200 {
		t.Errorf("holder balance = %d, want 200", got)
	}
}

// ==========================================================================
// Hash chain & conservation
// ==========================================================================

func TestHashChainLinks(t *testing.T) {
	c, persistChan := newTestCore(250)
	issuer := uuid.New()
	buyer := uuid.New()
	tokenID := uuid.New()

	mustApply(t, c, deposit(buyer, 5000, 1))
	mustApply(t, c, issueToken(issuer, tokenID, 1000, 12))
	mustApply(t, c, purchase(buyer, tokenID, 100))

	var prev *event.Envelope
	for i := 0; i < 3; i++ {
		out := <-persistChan
		env := out.Envelope
		if env.Sequence != int64(i) {
			t.Errorf("envelope %d sequence = %d", i, env.Sequence)
		}
		if prev != nil && env.PrevHash != prev.StateHash {
			t.Errorf("envelope %d prev hash does not link to envelope %d", i, i-1)
		}
		prev = env
	}
	if c.GetStateHash() != prev.StateHash {
		t.Error("chain tip does not match last envelope")
	}
}

func TestGlobalConservationAcrossWorkload(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	tokenID := uuid.New()
	listingID := uuid.New()
	auctionID := uuid.New()

	mustApply(t, c, deposit(alice, 10_000, 1))
	mustApply(t, c, deposit(bob, 10_000, 2))
	mustApply(t, c, issueToken(issuer, tokenID, 10_000, 5))
	mustApply(t, c, purchase(alice, tokenID, 1000))
	mustApply(t, c, &event.CreateListing{
		OpID: uuid.New(), Actor: alice, ListingID: listingID,
		TokenID: tokenID, Amount: 300, UnitPrice: 7, Timestamp: baseTime,
	})
	mustApply(t, c, &event.BuyListing{
		OpID: uuid.New(), Actor: bob, ListingID: listingID,
		Amount: 200, Timestamp: baseTime,
	})
	mustApply(t, c, &event.CreateAuction{
		OpID: uuid.New(), Actor: alice, AuctionID: auctionID,
		TokenID: tokenID, LotAmount: 100, ReservePrice: 50,
		Duration: 3600, Timestamp: baseTime,
	})
	mustApply(t, c, &event.PlaceBid{
		OpID: uuid.New(), Actor: bob, AuctionID: auctionID,
		Amount: 80, Timestamp: baseTime.Add(time.Minute),
	})
	mustApply(t, c, &event.EndAuction{
		OpID: uuid.New(), Actor: bob, AuctionID: auctionID,
		Timestamp: baseTime.Add(2 * time.Hour),
	})
	mustApply(t, c, &event.Stake{
		OpID: uuid.New(), Actor: bob, TokenID: tokenID,
		Amount: 150, Timestamp: baseTime.Add(3 * time.Hour),
	})
	mustApply(t, c, &event.FundRewardReserve{
		OpID: uuid.New(), Actor: alice, Amount: 500, Timestamp: baseTime.Add(3 * time.Hour),
	})

	for token, sum := range c.Balances().ComputeGlobalBalance() {
		if sum != 0 {
			t.Errorf("global balance for token %s = %d, want 0", token, sum)
		}
	}
}

// ==========================================================================
// Snapshot & restore
// ==========================================================================

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c, _ := newTestCore(250)
	issuer := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	tokenID := uuid.New()
	auctionID := uuid.New()

	firstDeposit := deposit(alice, 10_000, 1)
	mustApply(t, c, firstDeposit)
	mustApply(t, c, issueToken(issuer, tokenID, 10_000, 5))
	mustApply(t, c, purchase(alice, tokenID, 1000))
	mustApply(t, c, &event.CreateAuction{
		OpID: uuid.New(), Actor: alice, AuctionID: auctionID,
		TokenID: tokenID, LotAmount: 100, ReservePrice: 50,
		Duration: 3600, Timestamp: baseTime,
	})
	mustApply(t, c, deposit(bob, 1000, 2))
	mustApply(t, c, &event.PlaceBid{
		OpID: uuid.New(), Actor: bob, AuctionID: auctionID,
		Amount: 80, Timestamp: baseTime.Add(time.Minute),
	})

	snap := c.CreateSnapshotState()
	restored, _ := newTestCore(250)
	restored.RestoreFromSnapshot(snap)
	restored.WarmLRU(snap.IdempotencyKeys)

	if restored.GetSequence() != c.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", restored.GetSequence(), c.GetSequence())
	}
	if restored.GetStateHash() != c.GetStateHash() {
		t.Error("restored state hash diverges")
	}
	if got := restored.Balances().GetEscrowBalance(auctionID, ledger.SubAuctionBid, state.CurrencyID); got != 80 {
		t.Errorf("restored bid escrow = %d, want 80", got)
	}

	// Both cores settle the same next operation to the same hash.
	end := &event.EndAuction{
		OpID: uuid.New(), Actor: bob, AuctionID: auctionID,
		Timestamp: baseTime.Add(2 * time.Hour),
	}
	r1 := mustApply(t, c, end)
	r2 := mustApply(t, restored, &event.EndAuction{
		OpID: end.OpID, Actor: end.Actor, AuctionID: end.AuctionID, Timestamp: end.Timestamp,
	})
	if r1.StateHash != r2.StateHash {
		t.Error("restored core diverged on next operation")
	}

	// The restored core remembers processed keys.
	mustFail(t, restored, firstDeposit, ledger.KindDuplicateOperation)
}
