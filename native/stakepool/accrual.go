package stakepool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// effectiveTime caps now at the end of the funded period; accrual stops
// there even when the clock keeps running.
func (p *Pool) effectiveTime(now uint64) uint64 {
	if now < p.Reward.PeriodFinish {
		return now
	}
	return p.Reward.PeriodFinish
}

// rewardPerUnit integrates the reward rate from LastUpdateTime to the
// effective time without writing it back. With nothing staked the stored
// value is returned unchanged.
func (p *Pool) rewardPerUnit(now uint64) (*uint256.Int, error) {
	stored := cloneInt(p.Reward.RewardPerTokenStored)
	if p.TotalStaked.IsZero() {
		return stored, nil
	}
	effective := p.effectiveTime(now)
	if effective <= p.Reward.LastUpdateTime {
		return stored, nil
	}
	elapsed := uint256.NewInt(effective - p.Reward.LastUpdateTime)
	emitted, err := checkedMul(elapsed, p.Reward.RewardRate)
	if err != nil {
		return nil, err
	}
	increment, err := mulDiv(emitted, Scale, p.TotalStaked)
	if err != nil {
		return nil, err
	}
	return checkedAdd(stored, increment)
}

// earned is the reward owed to acct against the supplied accumulator value.
func earned(acct *AccountState, rewardPerUnit *uint256.Int) (*uint256.Int, error) {
	delta, err := checkedSub(rewardPerUnit, acct.RewardPerTokenPaid)
	if err != nil {
		return nil, err
	}
	pending, err := mulDiv(acct.StakedBalance, delta, Scale)
	if err != nil {
		return nil, err
	}
	return checkedAdd(pending, acct.AccruedRewards)
}

// checkpoint folds elapsed time into the accumulator and, when acct is not
// nil, settles the account against it. It must run before any change to
// TotalStaked, an account's StakedBalance, RewardRate or PeriodFinish.
func (tx *txn) checkpoint(acct *AccountState) error {
	pool := tx.pool
	current, err := pool.rewardPerUnit(tx.now)
	if err != nil {
		return err
	}
	var owed *uint256.Int
	if acct != nil {
		owed, err = earned(acct, current)
		if err != nil {
			return err
		}
	}
	pool.Reward.RewardPerTokenStored = current
	if effective := pool.effectiveTime(tx.now); effective > pool.Reward.LastUpdateTime {
		pool.Reward.LastUpdateTime = effective
	}
	if acct != nil {
		acct.AccruedRewards = owed
		acct.RewardPerTokenPaid = cloneInt(current)
	}
	return nil
}

// RewardPerUnit returns the accumulator integrated up to now.
func (e *Engine) RewardPerUnit() (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(pool *Pool, now uint64) error {
		value, err := pool.rewardPerUnit(now)
		out = value
		return err
	})
	return out, err
}

// EffectiveTime returns min(now, periodFinish).
func (e *Engine) EffectiveTime() (uint64, error) {
	var out uint64
	err := e.view(func(pool *Pool, now uint64) error {
		out = pool.effectiveTime(now)
		return nil
	})
	return out, err
}

// Earned returns the reward addr could claim right now.
func (e *Engine) Earned(addr common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(pool *Pool, now uint64) error {
		acct, err := e.loadAccount(addr)
		if err != nil {
			return err
		}
		current, err := pool.rewardPerUnit(now)
		if err != nil {
			return err
		}
		out, err = earned(acct, current)
		return err
	})
	return out, err
}
