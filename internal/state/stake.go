package state

import (
	"time"

	"github.com/google/uuid"

	"FanLedger/internal/ledger"
	fpmath "FanLedger/internal/math"
)

// Position is one holder's stake in one token pool. Accrued rewards are
// settled lazily: every mutation first folds the elapsed interval at the
// rate in force into Accrued, so rate changes are prospective only.
type Position struct {
	HolderID      uuid.UUID
	TokenID       uuid.UUID
	Staked        int64
	Accrued       int64
	LastAccrualAt time.Time
}

type holderToken struct {
	holder uuid.UUID
	token  uuid.UUID
}

// StakingSnapshot captures the full staking state for persistence.
type StakingSnapshot struct {
	Positions []Position          `json:"positions"`
	Rates     map[uuid.UUID]int64 `json:"rates"`
}

// StakingManager owns staking positions and per-token reward rates. Rates
// are currency units per staked token per second, scaled by fpmath.RateScale.
// Pools without an explicit rate accrue at the configured default.
type StakingManager struct {
	positions   map[holderToken]*Position
	rates       map[uuid.UUID]int64
	defaultRate int64
}

func NewStakingManager(defaultRate int64) *StakingManager {
	return &StakingManager{
		positions:   make(map[holderToken]*Position),
		rates:       make(map[uuid.UUID]int64),
		defaultRate: defaultRate,
	}
}

// Rate returns the current accrual rate for a token pool.
func (sm *StakingManager) Rate(tokenID uuid.UUID) int64 {
	if rate, ok := sm.rates[tokenID]; ok {
		return rate
	}
	return sm.defaultRate
}

func (sm *StakingManager) position(holderID, tokenID uuid.UUID) *Position {
	return sm.positions[holderToken{holder: holderID, token: tokenID}]
}

// accrualSince computes the reward earned between the position's last
// settlement and now, without mutating the position.
func (sm *StakingManager) accrualSince(pos *Position, now time.Time) (int64, error) {
	if pos.Staked == 0 {
		return 0, nil
	}
	rate := sm.Rate(pos.TokenID)
	if rate == 0 {
		return 0, nil
	}
	elapsed := int64(now.Sub(pos.LastAccrualAt) / time.Second)
	if elapsed <= 0 {
		return 0, nil
	}
	return fpmath.AccruedReward(elapsed, pos.Staked, rate)
}

// settle folds elapsed accrual into the position and advances the clock.
func (sm *StakingManager) settle(pos *Position, now time.Time) error {
	delta, err := sm.accrualSince(pos, now)
	if err != nil {
		return ledger.E(ledger.KindArithmeticOverflow, "reward accrual overflows: %v", err)
	}
	accrued, err := fpmath.AddChecked(pos.Accrued, delta)
	if err != nil {
		return ledger.E(ledger.KindArithmeticOverflow, "accrued rewards overflow: %v", err)
	}
	pos.Accrued = accrued
	pos.LastAccrualAt = now
	return nil
}

// checkSettle verifies that settling the holder's position at now cannot
// overflow, without mutating it. A missing position settles trivially.
func (sm *StakingManager) checkSettle(holderID, tokenID uuid.UUID, now time.Time) error {
	pos := sm.position(holderID, tokenID)
	if pos == nil {
		return nil
	}
	delta, err := sm.accrualSince(pos, now)
	if err != nil {
		return ledger.E(ledger.KindArithmeticOverflow, "reward accrual overflows: %v", err)
	}
	if _, err := fpmath.AddChecked(pos.Accrued, delta); err != nil {
		return ledger.E(ledger.KindArithmeticOverflow, "accrued rewards overflow: %v", err)
	}
	return nil
}

// CheckStake validates stake parameters and verifies the commit-time
// settlement cannot overflow. Balance sufficiency is enforced by the ledger
// pre-check on the escrow batch.
func (sm *StakingManager) CheckStake(holderID, tokenID uuid.UUID, amount int64, now time.Time) error {
	if amount <= 0 {
		return ledger.E(ledger.KindInvalidAmount, "stake amount must be positive: %d", amount)
	}
	return sm.checkSettle(holderID, tokenID, now)
}

// CommitStake settles the position and adds the newly locked amount.
func (sm *StakingManager) CommitStake(holderID, tokenID uuid.UUID, amount int64, now time.Time) error {
	key := holderToken{holder: holderID, token: tokenID}
	pos, ok := sm.positions[key]
	if !ok {
		pos = &Position{HolderID: holderID, TokenID: tokenID, LastAccrualAt: now}
		sm.positions[key] = pos
	}
	if err := sm.settle(pos, now); err != nil {
		return err
	}
	pos.Staked += amount
	return nil
}

// CheckUnstake validates an unlock against the position, including that the
// commit-time settlement cannot overflow.
func (sm *StakingManager) CheckUnstake(holderID, tokenID uuid.UUID, amount int64, now time.Time) error {
	if amount <= 0 {
		return ledger.E(ledger.KindInvalidAmount, "unstake amount must be positive: %d", amount)
	}
	pos := sm.position(holderID, tokenID)
	if pos == nil || pos.Staked == 0 {
		return ledger.E(ledger.KindResourceNotFound, "holder %s has no stake in token %s", holderID, tokenID)
	}
	if amount > pos.Staked {
		return ledger.E(ledger.KindInsufficientBalance,
			"unstake %d exceeds staked %d", amount, pos.Staked)
	}
	return sm.checkSettle(holderID, tokenID, now)
}

// CommitUnstake settles accrual up to now, then releases the amount. Accrued
// rewards survive the unstake and remain claimable.
func (sm *StakingManager) CommitUnstake(holderID, tokenID uuid.UUID, amount int64, now time.Time) error {
	pos := sm.position(holderID, tokenID)
	if err := sm.settle(pos, now); err != nil {
		return err
	}
	pos.Staked -= amount
	return nil
}

// CheckClaim returns the total claimable reward as of now, without mutating
// the position.
func (sm *StakingManager) CheckClaim(holderID, tokenID uuid.UUID, now time.Time) (int64, error) {
	pos := sm.position(holderID, tokenID)
	if pos == nil {
		return 0, ledger.E(ledger.KindResourceNotFound, "holder %s has no position in token %s", holderID, tokenID)
	}
	delta, err := sm.accrualSince(pos, now)
	if err != nil {
		return 0, ledger.E(ledger.KindArithmeticOverflow, "reward accrual overflows: %v", err)
	}
	total, err := fpmath.AddChecked(pos.Accrued, delta)
	if err != nil {
		return 0, ledger.E(ledger.KindArithmeticOverflow, "accrued rewards overflow: %v", err)
	}
	if total == 0 {
		return 0, ledger.E(ledger.KindInvalidAmount, "no rewards accrued for holder %s in token %s", holderID, tokenID)
	}
	return total, nil
}

// CommitClaim settles and zeroes the accrued reward after the payout batch
// applies.
func (sm *StakingManager) CommitClaim(holderID, tokenID uuid.UUID, now time.Time) error {
	pos := sm.position(holderID, tokenID)
	if err := sm.settle(pos, now); err != nil {
		return err
	}
	pos.Accrued = 0
	return nil
}

// PendingRewards is the query-side view of CheckClaim; zero is not an error
// here.
func (sm *StakingManager) PendingRewards(holderID, tokenID uuid.UUID, now time.Time) (int64, error) {
	pos := sm.position(holderID, tokenID)
	if pos == nil {
		return 0, nil
	}
	delta, err := sm.accrualSince(pos, now)
	if err != nil {
		return 0, err
	}
	return fpmath.AddChecked(pos.Accrued, delta)
}

// SetRewardRate changes a pool's rate. Every position in the pool settles at
// the old rate first, so accrual already earned is untouched. Settlements are
// computed for the whole pool before any position is written, so an overflow
// on one position leaves the pool unchanged.
func (sm *StakingManager) SetRewardRate(tokenID uuid.UUID, rate int64, now time.Time) error {
	if rate < 0 || rate > fpmath.RateScale {
		return ledger.E(ledger.KindInvalidAmount, "reward rate out of range: %d", rate)
	}
	settled := make(map[holderToken]int64)
	for key, pos := range sm.positions {
		if pos.TokenID != tokenID {
			continue
		}
		delta, err := sm.accrualSince(pos, now)
		if err != nil {
			return ledger.E(ledger.KindArithmeticOverflow, "reward accrual overflows: %v", err)
		}
		accrued, err := fpmath.AddChecked(pos.Accrued, delta)
		if err != nil {
			return ledger.E(ledger.KindArithmeticOverflow, "accrued rewards overflow: %v", err)
		}
		settled[key] = accrued
	}
	for key, accrued := range settled {
		pos := sm.positions[key]
		pos.Accrued = accrued
		pos.LastAccrualAt = now
	}
	sm.rates[tokenID] = rate
	return nil
}

// Snapshot captures all positions and rates.
func (sm *StakingManager) Snapshot() StakingSnapshot {
	snap := StakingSnapshot{
		Positions: make([]Position, 0, len(sm.positions)),
		Rates:     make(map[uuid.UUID]int64, len(sm.rates)),
	}
	for _, pos := range sm.positions {
		snap.Positions = append(snap.Positions, *pos)
	}
	for id, rate := range sm.rates {
		snap.Rates[id] = rate
	}
	return snap
}

// Restore replaces staking state from a snapshot.
func (sm *StakingManager) Restore(snap StakingSnapshot) {
	sm.positions = make(map[holderToken]*Position, len(snap.Positions))
	sm.rates = make(map[uuid.UUID]int64, len(snap.Rates))
	for _, pos := range snap.Positions {
		copied := pos
		sm.positions[holderToken{holder: pos.HolderID, token: pos.TokenID}] = &copied
	}
	for id, rate := range snap.Rates {
		sm.rates[id] = rate
	}
}
