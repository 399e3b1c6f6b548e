package stakepool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GlobalRewardState is the pool-wide accrual accumulator. It is only mutated
// by checkpoint and FundPeriod.
type GlobalRewardState struct {
	// RewardRate is the number of reward units released per second while a
	// period is active.
	RewardRate *uint256.Int
	// RewardsDuration is the length in seconds of the next funded period.
	RewardsDuration uint64
	// PeriodFinish is the unix second at which RewardRate stops applying.
	PeriodFinish uint64
	// LastUpdateTime is the unix second through which RewardPerTokenStored
	// has been integrated.
	LastUpdateTime uint64
	// RewardPerTokenStored is the cumulative reward per staked unit scaled by
	// Scale. It never decreases.
	RewardPerTokenStored *uint256.Int
}

// Clone returns a deep copy of the reward state.
func (g GlobalRewardState) Clone() GlobalRewardState {
	return GlobalRewardState{
		RewardRate:           cloneInt(g.RewardRate),
		RewardsDuration:      g.RewardsDuration,
		PeriodFinish:         g.PeriodFinish,
		LastUpdateTime:       g.LastUpdateTime,
		RewardPerTokenStored: cloneInt(g.RewardPerTokenStored),
	}
}

// Pool groups the singleton ledger record: the reward accumulator, the
// aggregate principal and the operator parameters.
type Pool struct {
	Reward         GlobalRewardState
	TotalStaked    *uint256.Int
	CooldownPeriod uint64
	Asset          common.Address
}

// Clone returns a deep copy of the pool record.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		Reward:         p.Reward.Clone(),
		TotalStaked:    cloneInt(p.TotalStaked),
		CooldownPeriod: p.CooldownPeriod,
		Asset:          p.Asset,
	}
}

// AssetConfigured reports whether SetAssetOnce has been applied.
func (p *Pool) AssetConfigured() bool {
	return p != nil && p.Asset != (common.Address{})
}

func (p *Pool) normalize() {
	if p.Reward.RewardRate == nil {
		p.Reward.RewardRate = new(uint256.Int)
	}
	if p.Reward.RewardPerTokenStored == nil {
		p.Reward.RewardPerTokenStored = new(uint256.Int)
	}
	if p.TotalStaked == nil {
		p.TotalStaked = new(uint256.Int)
	}
}

// AccountState tracks a single participant. Entries are never deleted; a
// zeroed entry is equivalent to an account that never interacted.
type AccountState struct {
	Address common.Address
	// StakedBalance is the principal currently earning rewards.
	StakedBalance *uint256.Int
	// PendingUnstakeAmount is principal queued for withdrawal. At most one
	// request is outstanding at a time.
	PendingUnstakeAmount *uint256.Int
	// UnstakeRequestedAt is only meaningful while PendingUnstakeAmount > 0.
	UnstakeRequestedAt uint64
	// RewardPerTokenPaid is the accumulator value at the last checkpoint.
	RewardPerTokenPaid *uint256.Int
	// AccruedRewards is owed but unpaid reward fixed at the last checkpoint.
	AccruedRewards *uint256.Int
}

// NewAccountState returns a zeroed entry for addr.
func NewAccountState(addr common.Address) *AccountState {
	acct := &AccountState{Address: addr}
	acct.normalize()
	return acct
}

// Clone returns a deep copy of the account entry.
func (a *AccountState) Clone() *AccountState {
	if a == nil {
		return nil
	}
	return &AccountState{
		Address:              a.Address,
		StakedBalance:        cloneInt(a.StakedBalance),
		PendingUnstakeAmount: cloneInt(a.PendingUnstakeAmount),
		UnstakeRequestedAt:   a.UnstakeRequestedAt,
		RewardPerTokenPaid:   cloneInt(a.RewardPerTokenPaid),
		AccruedRewards:       cloneInt(a.AccruedRewards),
	}
}

// HasPendingWithdrawal reports whether the account is in the
// PendingWithdrawal state.
func (a *AccountState) HasPendingWithdrawal() bool {
	return a != nil && a.PendingUnstakeAmount != nil && !a.PendingUnstakeAmount.IsZero()
}

func (a *AccountState) normalize() {
	if a.StakedBalance == nil {
		a.StakedBalance = new(uint256.Int)
	}
	if a.PendingUnstakeAmount == nil {
		a.PendingUnstakeAmount = new(uint256.Int)
	}
	if a.RewardPerTokenPaid == nil {
		a.RewardPerTokenPaid = new(uint256.Int)
	}
	if a.AccruedRewards == nil {
		a.AccruedRewards = new(uint256.Int)
	}
}

// PendingWithdrawal describes an outstanding withdrawal request.
type PendingWithdrawal struct {
	Amount *uint256.Int
	// AvailableAt is zero when no request is pending.
	AvailableAt uint64
}

// AccountView summarises an account for queries.
type AccountView struct {
	Address     common.Address
	Staked      *uint256.Int
	Pending     PendingWithdrawal
	Earned      *uint256.Int
	RequestedAt uint64
}

// PoolView summarises the pool for queries.
type PoolView struct {
	TotalStaked       *uint256.Int
	RewardRate        *uint256.Int
	RewardsDuration   uint64
	PeriodFinish      uint64
	LastUpdateTime    uint64
	RewardPerUnit     *uint256.Int
	RewardForDuration *uint256.Int
	CooldownPeriod    uint64
	Asset             common.Address
	EffectiveTime     uint64
}
