package ledger

import (
	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from settlement operations.
// Every operation produces exactly one batch; the generator's sequence counter
// therefore tracks the global operation sequence.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the sequence the next batch will carry.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the counter (recovery path).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(opRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, jt JournalType, debit, credit AccountKey, tokenID uuid.UUID, amount int64) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		OpRef:         b.OpRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		TokenID:       tokenID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit credits a confirmed bridge deposit.
// Moves funds: external:deposits → holder:available
func (jg *JournalGenerator) GenerateDeposit(
	holderID uuid.UUID,
	depositRef string,
	amount int64,
	currencyID uuid.UUID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(depositRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeDeposit,
		NewUserAccountKey(holderID, SubAvailable, currencyID),
		NewExternalAccountKey(SubDeposits, currencyID),
		currencyID, amount)

	jg.sequence++
	return batch, nil
}

// GeneratePurchase mints tokens against a primary-sale payment.
// Pre-check: buyer must cover the payment in the quote currency.
// Two legs: external:mint → buyer:available (token) and
// buyer:available → issuer:available (currency).
func (jg *JournalGenerator) GeneratePurchase(
	buyerID uuid.UUID,
	issuerID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	tokenAmount int64,
	currencyID uuid.UUID,
	paymentValue int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(buyerID, currencyID, paymentValue); err != nil {
		return nil, E(KindInsufficientFunds, "purchase pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 2)

	jg.appendJournal(batch, JournalTypeMint,
		NewUserAccountKey(buyerID, SubAvailable, tokenID),
		NewExternalAccountKey(SubMint, tokenID),
		tokenID, tokenAmount)

	jg.appendJournal(batch, JournalTypePurchasePayment,
		NewUserAccountKey(issuerID, SubAvailable, currencyID),
		NewUserAccountKey(buyerID, SubAvailable, currencyID),
		currencyID, paymentValue)

	jg.sequence++
	return batch, nil
}

// GenerateTransfer moves tokens between two holders.
// Pre-check: sender must have sufficient available balance.
func (jg *JournalGenerator) GenerateTransfer(
	fromID uuid.UUID,
	toID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(fromID, tokenID, amount); err != nil {
		return nil, E(KindInsufficientBalance, "transfer pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeTransfer,
		NewUserAccountKey(toID, SubAvailable, tokenID),
		NewUserAccountKey(fromID, SubAvailable, tokenID),
		tokenID, amount)

	jg.sequence++
	return batch, nil
}

// GenerateTrade settles a marketplace buy against a listing.
// Listed tokens stay in the seller's available balance until sale, so the
// seller side is re-checked here. The buyer pays payout + fee; the fee leg
// goes to the protocol fee sink.
func (jg *JournalGenerator) GenerateTrade(
	buyerID uuid.UUID,
	sellerID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	tokenAmount int64,
	currencyID uuid.UUID,
	payout int64,
	fee int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(buyerID, currencyID, payout+fee); err != nil {
		return nil, E(KindInsufficientFunds, "buy pre-check failed: %v", err)
	}
	if err := jg.balanceTracker.ValidateSufficientAvailable(sellerID, tokenID, tokenAmount); err != nil {
		return nil, E(KindInsufficientBalance, "seller pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 3)

	jg.appendJournal(batch, JournalTypeTradeToken,
		NewUserAccountKey(buyerID, SubAvailable, tokenID),
		NewUserAccountKey(sellerID, SubAvailable, tokenID),
		tokenID, tokenAmount)

	jg.appendJournal(batch, JournalTypeTradePayment,
		NewUserAccountKey(sellerID, SubAvailable, currencyID),
		NewUserAccountKey(buyerID, SubAvailable, currencyID),
		currencyID, payout)

	if fee > 0 {
		jg.appendJournal(batch, JournalTypeTradeFee,
			NewSystemAccountKey(SubFeeSink, currencyID),
			NewUserAccountKey(buyerID, SubAvailable, currencyID),
			currencyID, fee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateLotEscrow locks the auctioned tokens when an auction opens.
// Moves funds: seller:available → escrow:auction_lot
func (jg *JournalGenerator) GenerateLotEscrow(
	auctionID uuid.UUID,
	sellerID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(sellerID, tokenID, amount); err != nil {
		return nil, E(KindInsufficientBalance, "auction escrow pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeLotEscrow,
		NewEscrowAccountKey(auctionID, SubAuctionLot, tokenID),
		NewUserAccountKey(sellerID, SubAvailable, tokenID),
		tokenID, amount)

	jg.sequence++
	return batch, nil
}

// GenerateLotReclaim returns the lot to the seller when an auction ends with
// no bids.
func (jg *JournalGenerator) GenerateLotReclaim(
	auctionID uuid.UUID,
	sellerID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeLotRelease,
		NewUserAccountKey(sellerID, SubAvailable, tokenID),
		NewEscrowAccountKey(auctionID, SubAuctionLot, tokenID),
		tokenID, amount)

	jg.sequence++
	return batch, nil
}

// GenerateBidEscrow escrows a new bid and, when the bid displaces a previous
// leader, refunds the displaced bidder in the same batch so the escrow only
// ever holds the single leading bid.
func (jg *JournalGenerator) GenerateBidEscrow(
	auctionID uuid.UUID,
	bidderID uuid.UUID,
	opRef string,
	currencyID uuid.UUID,
	bidAmount int64,
	prevBidderID uuid.UUID,
	prevBidAmount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(bidderID, currencyID, bidAmount); err != nil {
		return nil, E(KindInsufficientFunds, "bid pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 2)

	if prevBidAmount > 0 {
		jg.appendJournal(batch, JournalTypeBidRefund,
			NewUserAccountKey(prevBidderID, SubAvailable, currencyID),
			NewEscrowAccountKey(auctionID, SubAuctionBid, currencyID),
			currencyID, prevBidAmount)
	}

	jg.appendJournal(batch, JournalTypeBidEscrow,
		NewEscrowAccountKey(auctionID, SubAuctionBid, currencyID),
		NewUserAccountKey(bidderID, SubAvailable, currencyID),
		currencyID, bidAmount)

	jg.sequence++
	return batch, nil
}

// GenerateAuctionSettle settles a won auction atomically: the lot moves from
// escrow to the winner, the escrowed bid pays the seller net of the protocol
// fee, and the fee leg goes to the fee sink.
func (jg *JournalGenerator) GenerateAuctionSettle(
	auctionID uuid.UUID,
	winnerID uuid.UUID,
	sellerID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	lotAmount int64,
	currencyID uuid.UUID,
	payout int64,
	fee int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 3)

	jg.appendJournal(batch, JournalTypeLotRelease,
		NewUserAccountKey(winnerID, SubAvailable, tokenID),
		NewEscrowAccountKey(auctionID, SubAuctionLot, tokenID),
		tokenID, lotAmount)

	jg.appendJournal(batch, JournalTypeAuctionPayout,
		NewUserAccountKey(sellerID, SubAvailable, currencyID),
		NewEscrowAccountKey(auctionID, SubAuctionBid, currencyID),
		currencyID, payout)

	if fee > 0 {
		jg.appendJournal(batch, JournalTypeAuctionFee,
			NewSystemAccountKey(SubFeeSink, currencyID),
			NewEscrowAccountKey(auctionID, SubAuctionBid, currencyID),
			currencyID, fee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateStake locks tokens into the holder's staked sub-account.
func (jg *JournalGenerator) GenerateStake(
	holderID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(holderID, tokenID, amount); err != nil {
		return nil, E(KindInsufficientBalance, "stake pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeStakeEscrow,
		NewUserAccountKey(holderID, SubStaked, tokenID),
		NewUserAccountKey(holderID, SubAvailable, tokenID),
		tokenID, amount)

	jg.sequence++
	return batch, nil
}

// GenerateUnstake releases staked tokens back to the available balance.
func (jg *JournalGenerator) GenerateUnstake(
	holderID uuid.UUID,
	opRef string,
	tokenID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	staked := jg.balanceTracker.GetStakedBalance(holderID, tokenID)
	if staked < amount {
		return nil, E(KindInsufficientBalance, "insufficient staked balance: have=%d, need=%d", staked, amount)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeStakeRelease,
		NewUserAccountKey(holderID, SubAvailable, tokenID),
		NewUserAccountKey(holderID, SubStaked, tokenID),
		tokenID, amount)

	jg.sequence++
	return batch, nil
}

// GenerateRewardClaim pays accrued staking rewards from the reward reserve,
// splitting off the protocol cut.
// Pre-check: the reserve must cover payout + fee; claims never drive it
// negative.
func (jg *JournalGenerator) GenerateRewardClaim(
	holderID uuid.UUID,
	opRef string,
	currencyID uuid.UUID,
	payout int64,
	fee int64,
	timestamp int64,
) (*Batch, error) {
	reserve := jg.balanceTracker.GetRewardReserve(currencyID)
	if reserve < payout+fee {
		return nil, E(KindInsufficientRewardReserve,
			"reward reserve cannot cover claim: reserve=%d, need=%d", reserve, payout+fee)
	}

	batch := jg.newBatch(opRef, timestamp, 2)

	jg.appendJournal(batch, JournalTypeRewardPayout,
		NewUserAccountKey(holderID, SubAvailable, currencyID),
		NewSystemAccountKey(SubRewardReserve, currencyID),
		currencyID, payout)

	if fee > 0 {
		jg.appendJournal(batch, JournalTypeRewardFee,
			NewSystemAccountKey(SubFeeSink, currencyID),
			NewSystemAccountKey(SubRewardReserve, currencyID),
			currencyID, fee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateReserveFund tops up the reward reserve from the funder's available
// balance.
func (jg *JournalGenerator) GenerateReserveFund(
	funderID uuid.UUID,
	opRef string,
	currencyID uuid.UUID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(funderID, currencyID, amount); err != nil {
		return nil, E(KindInsufficientFunds, "reserve funding pre-check failed: %v", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch, JournalTypeReserveFund,
		NewSystemAccountKey(SubRewardReserve, currencyID),
		NewUserAccountKey(funderID, SubAvailable, currencyID),
		currencyID, amount)

	jg.sequence++
	return batch, nil
}
