package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/event"
	"FanLedger/internal/ledger"
	fpmath "FanLedger/internal/math"
	"FanLedger/internal/observability"
	"FanLedger/internal/state"
)

// SettlementCore is the single-threaded operation processor. All state it
// owns is mutated only from Apply, which the gateway serializes; the core
// never calls time.Now() and is fully deterministic given its input stream.
type SettlementCore struct {
	sequence          int64
	feeBps            int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	tokens            *state.TokenManager
	listings          *state.ListingManager
	auctions          *state.AuctionManager
	staking           *state.StakingManager
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is what the core hands to the persistence and projection
// workers for every applied operation.
type CoreOutput struct {
	Envelope   *event.Envelope
	Batch      *ledger.Batch
	StateDelta []byte
	Amounts    map[string]int64
}

// Receipt is the synchronous answer to a submitted operation.
type Receipt struct {
	Sequence   int64
	OpType     event.OpType
	ResourceID uuid.UUID
	StateHash  [32]byte
	Amounts    map[string]int64
}

// Config carries the deterministic parameters the core is constructed with.
type Config struct {
	StartSequence       int64
	FeeBps              int64
	MinAuctionDuration  time.Duration
	MaxAuctionDuration  time.Duration
	DefaultRewardRate   int64
	IdempotencyCapacity int
}

type applyResult struct {
	batch      *ledger.Batch
	commit     func() error
	resourceID uuid.UUID
	amounts    map[string]int64
}

func NewSettlementCore(
	cfg Config,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *SettlementCore {
	balanceTracker := ledger.NewBalanceTracker()

	return &SettlementCore{
		sequence:          cfg.StartSequence,
		feeBps:            cfg.FeeBps,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        ledger.NewJournalGenerator(cfg.StartSequence, balanceTracker),
		validator:         ledger.NewInvariantValidator(balanceTracker),
		tokens:            state.NewTokenManager(),
		listings:          state.NewListingManager(),
		auctions:          state.NewAuctionManager(cfg.MinAuctionDuration, cfg.MaxAuctionDuration),
		staking:           state.NewStakingManager(cfg.DefaultRewardRate),
		idempotency:       NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// Apply is the main processing pipeline. It either settles the operation
// completely (ledger batch applied, entities committed, envelope emitted) or
// leaves every piece of state untouched and returns a typed error.
func (c *SettlementCore) Apply(op event.Operation) (*Receipt, error) {
	start := time.Now()
	opType := op.OpType().String()
	idempotencyKey := op.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(opType, idempotencyKey)

	// Step 2: Source sequence validation (bridge operations only)
	if dep, ok := op.(*event.ConfirmDeposit); ok {
		partition := fmt.Sprintf("bridge:%s", dep.Partition)
		if err := c.sequenceValidator.ValidateSequence(partition, dep.Sequence, isDuplicate); err != nil {
			return nil, fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, "duplicate").Inc()
		}
		return nil, ledger.E(ledger.KindDuplicateOperation, "operation %s already processed", idempotencyKey)
	}

	// Step 3: Dispatch: validate and build the batch; entity mutations are
	// deferred to the commit closure so a later failure leaves no effect.
	c.journalGen.SetSequence(c.sequence)
	result, err := c.dispatch(op)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, ledger.KindOf(err).String()).Inc()
		}
		return nil, err
	}

	// Step 4: Validate and apply the batch. State-only operations (issue,
	// reprice, listing lifecycle, rate change) carry an empty batch but
	// still get an envelope in the log.
	batch := result.batch
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return nil, fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Commit entity mutations. The ledger effects are already in;
	// a commit failure here means the in-memory state diverged from the
	// journal and the process must not continue.
	if result.commit != nil {
		if err := result.commit(); err != nil {
			panic(fmt.Sprintf("FATAL: post-apply commit failed: %v", err))
		}
	}

	// Step 6: State digest and hash chain. The chain tip moves inside
	// ComputeHash, so the link to the previous operation is captured first.
	stateDigest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	payload, err := json.Marshal(op)
	if err != nil {
		panic(fmt.Sprintf("FATAL: operation payload not serializable: %v", err))
	}

	envelope := &event.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		OpType:         op.OpType(),
		ActorID:        op.ActorID(),
		ResourceID:     result.resourceID,
		Timestamp:      op.OccurredAt(),
		SourceSequence: op.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Amounts:    result.amounts,
	}

	receipt := &Receipt{
		Sequence:   c.sequence,
		OpType:     op.OpType(),
		ResourceID: result.resourceID,
		StateHash:  stateHash,
		Amounts:    result.amounts,
	}
	c.sequence++

	// Step 7: Post-checks
	if err := c.postCheckInvariants(op); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Emit outputs. Persistence uses a BLOCKING send so the core
	// stalls rather than losing an operation; projections use a
	// NON-BLOCKING send and rebuild from the event log if they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Dropped; projection catches up via rebuild
	}

	// Step 9: Mark as processed
	c.idempotency.MarkProcessed(opType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreOpsApplied.WithLabelValues(opType).Inc()
		c.metrics.CoreOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return receipt, nil
}

func (c *SettlementCore) dispatch(op event.Operation) (*applyResult, error) {
	switch o := op.(type) {
	case *event.IssueToken:
		return c.handleIssueToken(o)
	case *event.PurchaseTokens:
		return c.handlePurchaseTokens(o)
	case *event.TransferTokens:
		return c.handleTransferTokens(o)
	case *event.SetUnitPrice:
		return c.handleSetUnitPrice(o)
	case *event.ConfirmDeposit:
		return c.handleConfirmDeposit(o)
	case *event.CreateListing:
		return c.handleCreateListing(o)
	case *event.BuyListing:
		return c.handleBuyListing(o)
	case *event.CancelListing:
		return c.handleCancelListing(o)
	case *event.CreateAuction:
		return c.handleCreateAuction(o)
	case *event.PlaceBid:
		return c.handlePlaceBid(o)
	case *event.EndAuction:
		return c.handleEndAuction(o)
	case *event.Stake:
		return c.handleStake(o)
	case *event.Unstake:
		return c.handleUnstake(o)
	case *event.ClaimRewards:
		return c.handleClaimRewards(o)
	case *event.SetRewardRate:
		return c.handleSetRewardRate(o)
	case *event.FundRewardReserve:
		return c.handleFundRewardReserve(o)
	default:
		return nil, fmt.Errorf("unknown operation type: %T", op)
	}
}

// emptyBatch builds the journalless batch used by state-only operations.
func (c *SettlementCore) emptyBatch(opRef string, ts time.Time) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  c.sequence,
		Timestamp: ts.UnixMicro(),
		Journals:  []ledger.Journal{},
	}
}

// --- Token issuer ---

func (c *SettlementCore) handleIssueToken(op *event.IssueToken) (*applyResult, error) {
	paymentToken := op.PaymentToken
	if paymentToken == uuid.Nil {
		paymentToken = state.CurrencyID
	}
	_, err := c.tokens.Issue(state.IssueParams{
		ID:             op.TokenID,
		IssuerID:       op.Actor,
		Name:           op.Name,
		Symbol:         op.Symbol,
		SupplyCap:      op.SupplyCap,
		UnitPrice:      op.UnitPrice,
		PaymentTokenID: paymentToken,
		Benefits:       op.Benefits,
	}, op.Timestamp)
	if err != nil {
		return nil, err
	}
	return &applyResult{
		batch:      c.emptyBatch(op.IdempotencyKey(), op.Timestamp),
		resourceID: op.TokenID,
	}, nil
}

func (c *SettlementCore) handlePurchaseTokens(op *event.PurchaseTokens) (*applyResult, error) {
	token, value, err := c.tokens.CheckPurchase(op.TokenID, op.Amount)
	if err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GeneratePurchase(
		op.Actor, token.IssuerID, op.IdempotencyKey(),
		op.TokenID, op.Amount,
		token.PaymentTokenID, value,
		op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			c.tokens.CommitPurchase(op.TokenID, op.Amount)
			return nil
		},
		resourceID: op.TokenID,
		amounts:    map[string]int64{"minted": op.Amount, "paid": value},
	}, nil
}

func (c *SettlementCore) handleTransferTokens(op *event.TransferTokens) (*applyResult, error) {
	if op.Amount <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "transfer amount must be positive: %d", op.Amount)
	}
	if op.Recipient == op.Actor {
		return nil, ledger.E(ledger.KindInvalidAmount, "transfer to self")
	}
	if op.TokenID != state.CurrencyID {
		if _, err := c.tokens.Get(op.TokenID); err != nil {
			return nil, err
		}
	}

	batch, err := c.journalGen.GenerateTransfer(
		op.Actor, op.Recipient, op.IdempotencyKey(),
		op.TokenID, op.Amount, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch:      batch,
		resourceID: op.TokenID,
		amounts:    map[string]int64{"transferred": op.Amount},
	}, nil
}

func (c *SettlementCore) handleSetUnitPrice(op *event.SetUnitPrice) (*applyResult, error) {
	if err := c.tokens.SetUnitPrice(op.TokenID, op.Actor, op.UnitPrice); err != nil {
		return nil, err
	}
	return &applyResult{
		batch:      c.emptyBatch(op.IdempotencyKey(), op.Timestamp),
		resourceID: op.TokenID,
	}, nil
}

func (c *SettlementCore) handleConfirmDeposit(op *event.ConfirmDeposit) (*applyResult, error) {
	if op.Amount <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "deposit amount must be positive: %d", op.Amount)
	}

	batch, err := c.journalGen.GenerateDeposit(
		op.Actor, op.IdempotencyKey(), op.Amount,
		state.CurrencyID, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch:      batch,
		resourceID: op.DepositID,
		amounts:    map[string]int64{"deposited": op.Amount},
	}, nil
}

// --- Marketplace ---

func (c *SettlementCore) handleCreateListing(op *event.CreateListing) (*applyResult, error) {
	if _, err := c.tokens.Get(op.TokenID); err != nil {
		return nil, err
	}
	if err := c.balanceTracker.ValidateSufficientAvailable(op.Actor, op.TokenID, op.Amount); err != nil {
		return nil, ledger.E(ledger.KindInsufficientBalance, "listing pre-check failed: %v", err)
	}
	if _, err := c.listings.Create(op.ListingID, op.Actor, op.TokenID, op.Amount, op.UnitPrice, op.Timestamp); err != nil {
		return nil, err
	}
	return &applyResult{
		batch:      c.emptyBatch(op.IdempotencyKey(), op.Timestamp),
		resourceID: op.ListingID,
	}, nil
}

func (c *SettlementCore) handleBuyListing(op *event.BuyListing) (*applyResult, error) {
	listing, value, err := c.listings.CheckBuy(op.ListingID, op.Actor, op.Amount)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Get(listing.TokenID)
	if err != nil {
		return nil, err
	}

	fee, payout, err := fpmath.FeeSplit(value, c.feeBps)
	if err != nil {
		return nil, ledger.E(ledger.KindArithmeticOverflow, "fee split failed: %v", err)
	}

	batch, err := c.journalGen.GenerateTrade(
		op.Actor, listing.SellerID, op.IdempotencyKey(),
		listing.TokenID, op.Amount,
		token.PaymentTokenID, payout, fee,
		op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			c.listings.CommitBuy(op.ListingID, op.Amount)
			return nil
		},
		resourceID: op.ListingID,
		amounts:    map[string]int64{"value": value, "fee": fee, "payout": payout},
	}, nil
}

func (c *SettlementCore) handleCancelListing(op *event.CancelListing) (*applyResult, error) {
	if err := c.listings.Cancel(op.ListingID, op.Actor); err != nil {
		return nil, err
	}
	return &applyResult{
		batch:      c.emptyBatch(op.IdempotencyKey(), op.Timestamp),
		resourceID: op.ListingID,
	}, nil
}

// --- Auction house ---

func (c *SettlementCore) handleCreateAuction(op *event.CreateAuction) (*applyResult, error) {
	if _, err := c.tokens.Get(op.TokenID); err != nil {
		return nil, err
	}
	duration := time.Duration(op.Duration) * time.Second
	if err := c.auctions.CheckCreate(op.AuctionID, op.LotAmount, op.ReservePrice, duration); err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GenerateLotEscrow(
		op.AuctionID, op.Actor, op.IdempotencyKey(),
		op.TokenID, op.LotAmount, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			c.auctions.CommitCreate(op.AuctionID, op.Actor, op.TokenID, op.LotAmount, op.ReservePrice, duration, op.Timestamp)
			return nil
		},
		resourceID: op.AuctionID,
		amounts:    map[string]int64{"escrowed": op.LotAmount},
	}, nil
}

func (c *SettlementCore) handlePlaceBid(op *event.PlaceBid) (*applyResult, error) {
	auction, err := c.auctions.CheckBid(op.AuctionID, op.Actor, op.Amount, op.Timestamp)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Get(auction.TokenID)
	if err != nil {
		return nil, err
	}

	prevBidder, prevBid := uuid.Nil, int64(0)
	if auction.HasBid() {
		prevBidder, prevBid = auction.LeadBidder, auction.LeadBid
	}

	batch, err := c.journalGen.GenerateBidEscrow(
		op.AuctionID, op.Actor, op.IdempotencyKey(),
		token.PaymentTokenID, op.Amount,
		prevBidder, prevBid,
		op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			c.auctions.CommitBid(op.AuctionID, op.Actor, op.Amount)
			return nil
		},
		resourceID: op.AuctionID,
		amounts:    map[string]int64{"bid": op.Amount, "refunded": prevBid},
	}, nil
}

func (c *SettlementCore) handleEndAuction(op *event.EndAuction) (*applyResult, error) {
	auction, err := c.auctions.CheckEnd(op.AuctionID, op.Timestamp)
	if err != nil {
		return nil, err
	}

	var batch *ledger.Batch
	amounts := map[string]int64{}

	if auction.HasBid() {
		token, err := c.tokens.Get(auction.TokenID)
		if err != nil {
			return nil, err
		}
		fee, payout, err := fpmath.FeeSplit(auction.LeadBid, c.feeBps)
		if err != nil {
			return nil, ledger.E(ledger.KindArithmeticOverflow, "fee split failed: %v", err)
		}
		batch, err = c.journalGen.GenerateAuctionSettle(
			op.AuctionID, auction.LeadBidder, auction.SellerID, op.IdempotencyKey(),
			auction.TokenID, auction.LotAmount,
			token.PaymentTokenID, payout, fee,
			op.Timestamp.UnixMicro(),
		)
		if err != nil {
			return nil, err
		}
		amounts["winning_bid"] = auction.LeadBid
		amounts["fee"] = fee
		amounts["payout"] = payout
	} else {
		batch, err = c.journalGen.GenerateLotReclaim(
			op.AuctionID, auction.SellerID, op.IdempotencyKey(),
			auction.TokenID, auction.LotAmount,
			op.Timestamp.UnixMicro(),
		)
		if err != nil {
			return nil, err
		}
		amounts["reclaimed"] = auction.LotAmount
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			c.auctions.CommitEnd(op.AuctionID)
			return nil
		},
		resourceID: op.AuctionID,
		amounts:    amounts,
	}, nil
}

// --- Staking ---

func (c *SettlementCore) handleStake(op *event.Stake) (*applyResult, error) {
	if _, err := c.tokens.Get(op.TokenID); err != nil {
		return nil, err
	}
	if err := c.staking.CheckStake(op.Actor, op.TokenID, op.Amount, op.Timestamp); err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GenerateStake(
		op.Actor, op.IdempotencyKey(), op.TokenID, op.Amount, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			return c.staking.CommitStake(op.Actor, op.TokenID, op.Amount, op.Timestamp)
		},
		resourceID: op.TokenID,
		amounts:    map[string]int64{"staked": op.Amount},
	}, nil
}

func (c *SettlementCore) handleUnstake(op *event.Unstake) (*applyResult, error) {
	if err := c.staking.CheckUnstake(op.Actor, op.TokenID, op.Amount, op.Timestamp); err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GenerateUnstake(
		op.Actor, op.IdempotencyKey(), op.TokenID, op.Amount, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			return c.staking.CommitUnstake(op.Actor, op.TokenID, op.Amount, op.Timestamp)
		},
		resourceID: op.TokenID,
		amounts:    map[string]int64{"unstaked": op.Amount},
	}, nil
}

func (c *SettlementCore) handleClaimRewards(op *event.ClaimRewards) (*applyResult, error) {
	token, err := c.tokens.Get(op.TokenID)
	if err != nil {
		return nil, err
	}
	total, err := c.staking.CheckClaim(op.Actor, op.TokenID, op.Timestamp)
	if err != nil {
		return nil, err
	}

	fee, payout, err := fpmath.FeeSplit(total, c.feeBps)
	if err != nil {
		return nil, ledger.E(ledger.KindArithmeticOverflow, "fee split failed: %v", err)
	}

	batch, err := c.journalGen.GenerateRewardClaim(
		op.Actor, op.IdempotencyKey(), token.PaymentTokenID, payout, fee, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch: batch,
		commit: func() error {
			return c.staking.CommitClaim(op.Actor, op.TokenID, op.Timestamp)
		},
		resourceID: op.TokenID,
		amounts:    map[string]int64{"accrued": total, "fee": fee, "payout": payout},
	}, nil
}

func (c *SettlementCore) handleSetRewardRate(op *event.SetRewardRate) (*applyResult, error) {
	token, err := c.tokens.Get(op.TokenID)
	if err != nil {
		return nil, err
	}
	if token.IssuerID != op.Actor {
		return nil, ledger.E(ledger.KindUnauthorized, "only the issuer may set the reward rate for token %s", op.TokenID)
	}
	if err := c.staking.SetRewardRate(op.TokenID, op.Rate, op.Timestamp); err != nil {
		return nil, err
	}
	return &applyResult{
		batch:      c.emptyBatch(op.IdempotencyKey(), op.Timestamp),
		resourceID: op.TokenID,
	}, nil
}

func (c *SettlementCore) handleFundRewardReserve(op *event.FundRewardReserve) (*applyResult, error) {
	if op.Amount <= 0 {
		return nil, ledger.E(ledger.KindInvalidAmount, "funding amount must be positive: %d", op.Amount)
	}
	currency := state.CurrencyID
	if op.TokenID != uuid.Nil {
		token, err := c.tokens.Get(op.TokenID)
		if err != nil {
			return nil, err
		}
		currency = token.PaymentTokenID
	}

	batch, err := c.journalGen.GenerateReserveFund(
		op.Actor, op.IdempotencyKey(), currency, op.Amount, op.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}

	return &applyResult{
		batch:      batch,
		resourceID: op.Actor,
		amounts:    map[string]int64{"funded": op.Amount},
	}, nil
}

// computeStateDigest creates canonical bytes for the state hash from the
// accounts the batch touched.
func (c *SettlementCore) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// paymentCurrency resolves the currency a token settles in, falling back to
// the quote currency when the token is unknown.
func (c *SettlementCore) paymentCurrency(tokenID uuid.UUID) uuid.UUID {
	if token, err := c.tokens.Get(tokenID); err == nil {
		return token.PaymentTokenID
	}
	return state.CurrencyID
}

// postCheckInvariants validates invariants after batch application
func (c *SettlementCore) postCheckInvariants(op event.Operation) error {
	switch o := op.(type) {
	case *event.PurchaseTokens:
		if err := c.validator.ValidateHolderNonNegative(o.Actor, c.paymentCurrency(o.TokenID)); err != nil {
			return fmt.Errorf("post-check buyer currency: %w", err)
		}
		token, err := c.tokens.Get(o.TokenID)
		if err == nil && token.CirculatingSupply != c.balanceTracker.GetCirculatingSupply(o.TokenID) {
			return fmt.Errorf("supply divergence for token %s: registry=%d ledger=%d",
				o.TokenID, token.CirculatingSupply, c.balanceTracker.GetCirculatingSupply(o.TokenID))
		}

	case *event.BuyListing:
		if listing, err := c.listings.Get(o.ListingID); err == nil {
			if err := c.validator.ValidateHolderNonNegative(o.Actor, c.paymentCurrency(listing.TokenID)); err != nil {
				return fmt.Errorf("post-check buyer currency: %w", err)
			}
		}

	case *event.PlaceBid:
		if auction, err := c.auctions.Get(o.AuctionID); err == nil {
			if err := c.validator.ValidateEscrowConsistent(o.AuctionID, uuid.Nil, c.paymentCurrency(auction.TokenID)); err != nil {
				return fmt.Errorf("post-check bid escrow: %w", err)
			}
		}

	case *event.EndAuction:
		auction, err := c.auctions.Get(o.AuctionID)
		if err == nil {
			if bal := c.balanceTracker.GetEscrowBalance(o.AuctionID, ledger.SubAuctionLot, auction.TokenID); bal != 0 {
				return fmt.Errorf("post-check: lot escrow residual for auction %s: %d", o.AuctionID, bal)
			}
			if bal := c.balanceTracker.GetEscrowBalance(o.AuctionID, ledger.SubAuctionBid, c.paymentCurrency(auction.TokenID)); bal != 0 {
				return fmt.Errorf("post-check: bid escrow residual for auction %s: %d", o.AuctionID, bal)
			}
		}

	case *event.ClaimRewards:
		if err := c.validator.ValidateRewardReserveNonNegative(c.paymentCurrency(o.TokenID)); err != nil {
			return fmt.Errorf("post-check reward reserve: %w", err)
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check global balance at seq %d: %w", c.sequence, err)
		}
	}

	return nil
}

// --- Snapshot restore & startup ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Tokens          map[uuid.UUID]state.Token
	Listings        map[uuid.UUID]state.Listing
	Auctions        map[uuid.UUID]state.Auction
	Staking         state.StakingSnapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state. On warm restart
// the latest snapshot loads first, then the event log replays forward.
func (c *SettlementCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign

	c.hasher.SetPrevHash(snap.StateHash)
	c.balanceTracker.Restore(snap.Balances)
	c.tokens.Restore(snap.Tokens)
	c.listings.Restore(snap.Listings)
	c.auctions.Restore(snap.Auctions)
	c.staking.Restore(snap.Staking)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	c.journalGen.SetSequence(c.sequence)
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *SettlementCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// SetDBChecker attaches the database dedup tier once startup replay is done.
func (c *SettlementCore) SetDBChecker(dbChecker DBIdempotencyChecker) {
	c.idempotency.SetDBChecker(dbChecker)
}

// GetSequence returns the next sequence the core will assign.
func (c *SettlementCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *SettlementCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *SettlementCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Tokens:          c.tokens.Snapshot(),
		Listings:        c.listings.Snapshot(),
		Auctions:        c.auctions.Snapshot(),
		Staking:         c.staking.Snapshot(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// Queries used by the read path. These run on the core goroutine via the
// gateway, never concurrently with Apply.

func (c *SettlementCore) Balances() *ledger.BalanceTracker { return c.balanceTracker }
func (c *SettlementCore) Tokens() *state.TokenManager      { return c.tokens }
func (c *SettlementCore) Listings() *state.ListingManager  { return c.listings }
func (c *SettlementCore) Auctions() *state.AuctionManager  { return c.auctions }
func (c *SettlementCore) Staking() *state.StakingManager   { return c.staking }
