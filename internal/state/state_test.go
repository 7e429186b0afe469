package state

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/ledger"
	fpmath "FanLedger/internal/math"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ==========================================================================
// Token registry
// ==========================================================================

func issueParams(id, issuer uuid.UUID, cap, price int64) IssueParams {
	return IssueParams{
		ID: id, IssuerID: issuer,
		Name: "Club North", Symbol: "NORTH",
		SupplyCap: cap, UnitPrice: price,
		PaymentTokenID: CurrencyID,
	}
}

func TestTokenIssueAndSupplyCap(t *testing.T) {
	tm := NewTokenManager()
	issuer := uuid.New()
	tokenID := uuid.New()

	if _, err := tm.Issue(issueParams(tokenID, issuer, 1_000, 12), t0); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tm.Issue(issueParams(tokenID, issuer, 1_000, 12), t0); ledger.KindOf(err) != ledger.KindDuplicateOperation {
		t.Fatalf("re-issue err = %v, want DuplicateOperation", err)
	}

	_, value, err := tm.CheckPurchase(tokenID, 100)
	if err != nil {
		t.Fatalf("check purchase: %v", err)
	}
	if value != 1_200 {
		t.Errorf("purchase value = %d, want 1200", value)
	}
	tm.CommitPurchase(tokenID, 100)

	// 900 remain; a purchase of exactly 900 is allowed, 901 is not
	if _, _, err := tm.CheckPurchase(tokenID, 900); err != nil {
		t.Errorf("cap-exact purchase rejected: %v", err)
	}
	if _, _, err := tm.CheckPurchase(tokenID, 901); ledger.KindOf(err) != ledger.KindSupplyExceeded {
		t.Errorf("over-cap err = %v, want SupplyExceeded", err)
	}
}

func TestTokenRepriceAuthorization(t *testing.T) {
	tm := NewTokenManager()
	issuer, stranger := uuid.New(), uuid.New()
	tokenID := uuid.New()

	if _, err := tm.Issue(issueParams(tokenID, issuer, 1_000, 12), t0); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := tm.SetUnitPrice(tokenID, stranger, 20); ledger.KindOf(err) != ledger.KindUnauthorized {
		t.Errorf("stranger reprice err = %v, want Unauthorized", err)
	}
	if err := tm.SetUnitPrice(tokenID, issuer, 20); err != nil {
		t.Errorf("issuer reprice: %v", err)
	}

	_, value, err := tm.CheckPurchase(tokenID, 10)
	if err != nil {
		t.Fatalf("check purchase: %v", err)
	}
	if value != 200 {
		t.Errorf("value after reprice = %d, want 200", value)
	}
}

func TestTokenPaymentTokenValidation(t *testing.T) {
	tm := NewTokenManager()
	issuer := uuid.New()

	selfPaid := issueParams(uuid.New(), issuer, 1_000, 12)
	selfPaid.PaymentTokenID = selfPaid.ID
	if _, err := tm.Issue(selfPaid, t0); ledger.KindOf(err) != ledger.KindInvalidAmount {
		t.Errorf("self-paid err = %v, want InvalidAmount", err)
	}

	unknownPay := issueParams(uuid.New(), issuer, 1_000, 12)
	unknownPay.PaymentTokenID = uuid.New()
	if _, err := tm.Issue(unknownPay, t0); ledger.KindOf(err) != ledger.KindResourceNotFound {
		t.Errorf("unknown payment token err = %v, want ResourceNotFound", err)
	}

	// A token may settle against another issued token.
	base := issueParams(uuid.New(), issuer, 1_000, 12)
	if _, err := tm.Issue(base, t0); err != nil {
		t.Fatalf("issue base: %v", err)
	}
	derived := issueParams(uuid.New(), issuer, 500, 3)
	derived.PaymentTokenID = base.ID
	if _, err := tm.Issue(derived, t0); err != nil {
		t.Errorf("issue derived: %v", err)
	}
}

// ==========================================================================
// Marketplace listings
// ==========================================================================

func TestListingRejectsSecondActiveListing(t *testing.T) {
	lm := NewListingManager()
	seller := uuid.New()
	token := uuid.New()

	if _, err := lm.Create(uuid.New(), seller, token, 100, 12, t0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := lm.Create(uuid.New(), seller, token, 50, 15, t0); ledger.KindOf(err) != ledger.KindAlreadyListed {
		t.Fatalf("second listing err = %v, want AlreadyListed", err)
	}

	// A different token is a different slot
	if _, err := lm.Create(uuid.New(), seller, uuid.New(), 50, 15, t0); err != nil {
		t.Errorf("listing for second token: %v", err)
	}
}

func TestListingPartialFillsThenRetires(t *testing.T) {
	lm := NewListingManager()
	seller, buyer := uuid.New(), uuid.New()
	token := uuid.New()
	listingID := uuid.New()

	if _, err := lm.Create(listingID, seller, token, 100, 12, t0); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, value, err := lm.CheckBuy(listingID, buyer, 40)
	if err != nil {
		t.Fatalf("check buy: %v", err)
	}
	if value != 480 {
		t.Errorf("value = %d, want 480", value)
	}
	lm.CommitBuy(listingID, 40)

	if _, _, err := lm.CheckBuy(listingID, buyer, 61); ledger.KindOf(err) != ledger.KindInvalidAmount {
		t.Errorf("overfill err = %v, want InvalidAmount", err)
	}

	lm.CommitBuy(listingID, 60)
	listing, _ := lm.Get(listingID)
	if listing.Status != ListingFilled {
		t.Errorf("status = %s, want filled", listing.Status)
	}
	if _, _, err := lm.CheckBuy(listingID, buyer, 1); ledger.KindOf(err) != ledger.KindResourceInactive {
		t.Errorf("buy on filled err = %v, want ResourceInactive", err)
	}

	// Slot freed: seller may list the token again
	if _, err := lm.Create(uuid.New(), seller, token, 10, 12, t0); err != nil {
		t.Errorf("relist after fill: %v", err)
	}
}

func TestListingSelfBuyAndCancel(t *testing.T) {
	lm := NewListingManager()
	seller, stranger := uuid.New(), uuid.New()
	listingID := uuid.New()

	if _, err := lm.Create(listingID, seller, uuid.New(), 100, 12, t0); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := lm.CheckBuy(listingID, seller, 10); ledger.KindOf(err) != ledger.KindUnauthorized {
		t.Errorf("self-buy err = %v, want Unauthorized", err)
	}
	if err := lm.Cancel(listingID, stranger); ledger.KindOf(err) != ledger.KindUnauthorized {
		t.Errorf("stranger cancel err = %v, want Unauthorized", err)
	}
	if err := lm.Cancel(listingID, seller); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := lm.Cancel(listingID, seller); ledger.KindOf(err) != ledger.KindResourceInactive {
		t.Errorf("double cancel err = %v, want ResourceInactive", err)
	}
}

// ==========================================================================
// Auction state machine
// ==========================================================================

func newOpenAuction(t *testing.T, am *AuctionManager, seller uuid.UUID, reserve int64, duration time.Duration) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := am.CheckCreate(id, 50, reserve, duration); err != nil {
		t.Fatalf("check create: %v", err)
	}
	am.CommitCreate(id, seller, uuid.New(), 50, reserve, duration, t0)
	return id
}

func TestAuctionDurationBounds(t *testing.T) {
	am := NewAuctionManager(time.Minute, 24*time.Hour)

	if err := am.CheckCreate(uuid.New(), 50, 100, 30*time.Second); ledger.KindOf(err) != ledger.KindInvalidDuration {
		t.Errorf("short duration err = %v, want InvalidDuration", err)
	}
	if err := am.CheckCreate(uuid.New(), 50, 100, 48*time.Hour); ledger.KindOf(err) != ledger.KindInvalidDuration {
		t.Errorf("long duration err = %v, want InvalidDuration", err)
	}
	if err := am.CheckCreate(uuid.New(), 50, 100, time.Hour); err != nil {
		t.Errorf("valid duration: %v", err)
	}
}

func TestAuctionBidMonotonicity(t *testing.T) {
	am := NewAuctionManager(time.Minute, 24*time.Hour)
	seller := uuid.New()
	bidderA, bidderB := uuid.New(), uuid.New()
	id := newOpenAuction(t, am, seller, 100, time.Hour)
	now := t0.Add(time.Minute)

	if _, err := am.CheckBid(id, bidderA, 99, now); ledger.KindOf(err) != ledger.KindBidTooLow {
		t.Fatalf("below-reserve err = %v, want BidTooLow", err)
	}

	// The starting price is the current price, so a first bid must exceed it
	if _, err := am.CheckBid(id, bidderA, 100, now); ledger.KindOf(err) != ledger.KindBidTooLow {
		t.Fatalf("reserve-exact bid err = %v, want BidTooLow", err)
	}
	if _, err := am.CheckBid(id, bidderA, 101, now); err != nil {
		t.Fatalf("first bid above reserve: %v", err)
	}
	am.CommitBid(id, bidderA, 110)

	if _, err := am.CheckBid(id, bidderB, 110, now); ledger.KindOf(err) != ledger.KindBidTooLow {
		t.Errorf("equal bid err = %v, want BidTooLow", err)
	}
	if _, err := am.CheckBid(id, bidderB, 150, now); err != nil {
		t.Errorf("higher bid: %v", err)
	}
	if _, err := am.CheckBid(id, seller, 200, now); ledger.KindOf(err) != ledger.KindUnauthorized {
		t.Errorf("seller self-bid err = %v, want Unauthorized", err)
	}
}

func TestAuctionExpiryAndSettlement(t *testing.T) {
	am := NewAuctionManager(time.Minute, 24*time.Hour)
	seller, bidder := uuid.New(), uuid.New()
	id := newOpenAuction(t, am, seller, 100, time.Hour)

	beforeEnd := t0.Add(30 * time.Minute)
	atEnd := t0.Add(time.Hour)

	if _, err := am.CheckEnd(id, beforeEnd); ledger.KindOf(err) != ledger.KindAuctionNotYetExpired {
		t.Fatalf("early end err = %v, want AuctionNotYetExpired", err)
	}

	if _, err := am.CheckBid(id, bidder, 150, beforeEnd); err != nil {
		t.Fatalf("bid: %v", err)
	}
	am.CommitBid(id, bidder, 150)

	// Bids at or after the deadline are rejected
	if _, err := am.CheckBid(id, bidder, 200, atEnd); ledger.KindOf(err) != ledger.KindAuctionExpired {
		t.Errorf("post-deadline bid err = %v, want AuctionExpired", err)
	}

	auction, err := am.CheckEnd(id, atEnd)
	if err != nil {
		t.Fatalf("check end: %v", err)
	}
	if auction.LeadBidder != bidder || auction.LeadBid != 150 {
		t.Errorf("winner = %s/%d, want %s/150", auction.LeadBidder, auction.LeadBid, bidder)
	}
	am.CommitEnd(id)

	if _, err := am.CheckEnd(id, atEnd.Add(time.Minute)); ledger.KindOf(err) != ledger.KindAlreadySettled {
		t.Errorf("re-end err = %v, want AlreadySettled", err)
	}

	if auction.Status != AuctionSettled {
		t.Errorf("status = %s, want settled", auction.Status)
	}
}

func TestAuctionNoBidCancellation(t *testing.T) {
	am := NewAuctionManager(time.Minute, 24*time.Hour)
	seller := uuid.New()
	id := newOpenAuction(t, am, seller, 100, time.Hour)
	atEnd := t0.Add(time.Hour)

	auction, err := am.CheckEnd(id, atEnd)
	if err != nil {
		t.Fatalf("check end: %v", err)
	}
	if auction.HasBid() {
		t.Fatal("no bids were placed")
	}
	am.CommitEnd(id)

	if auction.Status != AuctionCancelled {
		t.Errorf("status = %s, want cancelled", auction.Status)
	}
	if _, err := am.CheckEnd(id, atEnd.Add(time.Minute)); ledger.KindOf(err) != ledger.KindAlreadySettled {
		t.Errorf("re-end err = %v, want AlreadySettled", err)
	}
}

// ==========================================================================
// Staking accrual
// ==========================================================================

func TestStakeAccrualLinearInTime(t *testing.T) {
	sm := NewStakingManager(0)
	holder := uuid.New()
	token := uuid.New()
	rate := fpmath.RateScale / 1_000 // 0.001 currency per token-second

	if err := sm.SetRewardRate(token, rate, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := sm.CommitStake(holder, token, 2_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 2000 staked at 0.001/s for 500s = 1000
	pending, err := sm.PendingRewards(holder, token, t0.Add(500*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 1_000 {
		t.Errorf("pending = %d, want 1000", pending)
	}

	// Doubling elapsed time doubles the reward
	pending2, err := sm.PendingRewards(holder, token, t0.Add(1_000*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending2 != 2*pending {
		t.Errorf("pending at 2t = %d, want %d", pending2, 2*pending)
	}
}

func TestStakeAccrualSurvivesUnstake(t *testing.T) {
	sm := NewStakingManager(0)
	holder := uuid.New()
	token := uuid.New()
	rate := fpmath.RateScale / 1_000

	if err := sm.SetRewardRate(token, rate, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := sm.CommitStake(holder, token, 1_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	mid := t0.Add(100 * time.Second)
	if err := sm.CheckUnstake(holder, token, 1_000, mid); err != nil {
		t.Fatalf("check unstake: %v", err)
	}
	if err := sm.CommitUnstake(holder, token, 1_000, mid); err != nil {
		t.Fatalf("unstake: %v", err)
	}

	// 1000 × 0.001 × 100s = 100, frozen once the stake drops to zero
	pending, err := sm.PendingRewards(holder, token, mid.Add(time.Hour))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 100 {
		t.Errorf("pending = %d, want 100", pending)
	}
}

func TestRewardRateChangeIsProspective(t *testing.T) {
	sm := NewStakingManager(0)
	holder := uuid.New()
	token := uuid.New()

	if err := sm.SetRewardRate(token, fpmath.RateScale/1_000, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := sm.CommitStake(holder, token, 1_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 100s at 0.001/s, then rate doubles for another 100s
	mid := t0.Add(100 * time.Second)
	if err := sm.SetRewardRate(token, 2*fpmath.RateScale/1_000, mid); err != nil {
		t.Fatalf("rate change: %v", err)
	}

	pending, err := sm.PendingRewards(holder, token, mid.Add(100*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 100+200 {
		t.Errorf("pending = %d, want 300", pending)
	}
}

func TestDefaultRewardRateFallback(t *testing.T) {
	sm := NewStakingManager(fpmath.RateScale / 1_000)
	holder := uuid.New()
	token := uuid.New()

	if err := sm.CommitStake(holder, token, 1_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// No explicit rate: the pool accrues at the configured default.
	pending, err := sm.PendingRewards(holder, token, t0.Add(100*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 100 {
		t.Errorf("pending at default rate = %d, want 100", pending)
	}

	// An explicit zero rate overrides the default.
	if err := sm.SetRewardRate(token, 0, t0.Add(100*time.Second)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	pending, err = sm.PendingRewards(holder, token, t0.Add(200*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 100 {
		t.Errorf("pending after zero rate = %d, want 100", pending)
	}
}

func TestClaimZeroesAccrual(t *testing.T) {
	sm := NewStakingManager(0)
	holder := uuid.New()
	token := uuid.New()

	if err := sm.SetRewardRate(token, fpmath.RateScale/1_000, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := sm.CommitStake(holder, token, 1_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	now := t0.Add(100 * time.Second)
	total, err := sm.CheckClaim(holder, token, now)
	if err != nil {
		t.Fatalf("check claim: %v", err)
	}
	if total != 100 {
		t.Errorf("claimable = %d, want 100", total)
	}
	if err := sm.CommitClaim(holder, token, now); err != nil {
		t.Fatalf("commit claim: %v", err)
	}

	if _, err := sm.CheckClaim(holder, token, now); ledger.KindOf(err) != ledger.KindInvalidAmount {
		t.Errorf("empty claim err = %v, want InvalidAmount", err)
	}

	// Accrual resumes from the claim point
	pending, err := sm.PendingRewards(holder, token, now.Add(50*time.Second))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 50 {
		t.Errorf("pending after claim = %d, want 50", pending)
	}
}

func TestUnstakeWithoutPosition(t *testing.T) {
	sm := NewStakingManager(0)
	if err := sm.CheckUnstake(uuid.New(), uuid.New(), 10, t0); ledger.KindOf(err) != ledger.KindResourceNotFound {
		t.Errorf("err = %v, want ResourceNotFound", err)
	}
}

func TestAccrualOverflowCaughtInChecks(t *testing.T) {
	sm := NewStakingManager(0)
	holder := uuid.New()
	token := uuid.New()

	if err := sm.SetRewardRate(token, fpmath.RateScale, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	// At rate 1.0 the position accrues its full size every second, so this
	// stake overflows int64 within two seconds.
	if err := sm.CommitStake(holder, token, 9_000_000_000_000_000_000, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	later := t0.Add(2 * time.Second)

	if err := sm.CheckStake(holder, token, 1, later); ledger.KindOf(err) != ledger.KindArithmeticOverflow {
		t.Errorf("stake check err = %v, want ArithmeticOverflow", err)
	}
	if err := sm.CheckUnstake(holder, token, 1, later); ledger.KindOf(err) != ledger.KindArithmeticOverflow {
		t.Errorf("unstake check err = %v, want ArithmeticOverflow", err)
	}

	pos := sm.position(holder, token)
	if pos.Accrued != 0 || !pos.LastAccrualAt.Equal(t0) {
		t.Errorf("position mutated by checks: accrued=%d settledAt=%s", pos.Accrued, pos.LastAccrualAt)
	}
}

func TestSetRewardRateAllOrNothing(t *testing.T) {
	sm := NewStakingManager(0)
	small, huge := uuid.New(), uuid.New()
	token := uuid.New()

	if err := sm.SetRewardRate(token, fpmath.RateScale, t0); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := sm.CommitStake(small, token, 1_000, t0); err != nil {
		t.Fatalf("stake small: %v", err)
	}
	if err := sm.CommitStake(huge, token, 9_000_000_000_000_000_000, t0); err != nil {
		t.Fatalf("stake huge: %v", err)
	}

	later := t0.Add(2 * time.Second)
	if err := sm.SetRewardRate(token, 0, later); ledger.KindOf(err) != ledger.KindArithmeticOverflow {
		t.Fatalf("rate change err = %v, want ArithmeticOverflow", err)
	}

	// The failed change left the rate and every position untouched
	if got := sm.Rate(token); got != fpmath.RateScale {
		t.Errorf("rate = %d, want %d", got, fpmath.RateScale)
	}
	pos := sm.position(small, token)
	if pos.Accrued != 0 || !pos.LastAccrualAt.Equal(t0) {
		t.Errorf("pool partially settled: accrued=%d settledAt=%s", pos.Accrued, pos.LastAccrualAt)
	}
}
