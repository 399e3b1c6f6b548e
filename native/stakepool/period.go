package stakepool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FundPeriod pulls amount from the owner and starts a new reward period of
// RewardsDuration seconds. Reward still undistributed in an active period is
// folded into the new rate, so a zero amount restarts an active period.
func (e *Engine) FundPeriod(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	return e.execute(ctx, "fund_period", func(tx *txn) (*effect, error) {
		pool := tx.pool
		if !pool.AssetConfigured() {
			return nil, ErrAssetNotConfigured
		}
		if pool.Reward.RewardsDuration == 0 {
			return nil, ErrZeroDuration
		}
		if err := tx.checkpoint(nil); err != nil {
			return nil, err
		}
		duration := uint256.NewInt(pool.Reward.RewardsDuration)
		leftover := new(uint256.Int)
		if tx.now < pool.Reward.PeriodFinish {
			remaining := uint256.NewInt(pool.Reward.PeriodFinish - tx.now)
			var err error
			leftover, err = checkedMul(remaining, pool.Reward.RewardRate)
			if err != nil {
				return nil, err
			}
		}
		budget, err := checkedAdd(amount, leftover)
		if err != nil {
			return nil, err
		}
		rate := floorDiv(budget, duration)
		if rate.IsZero() {
			return nil, ErrZeroRewardRate
		}
		finish, err := checkedAddSeconds(tx.now, pool.Reward.RewardsDuration)
		if err != nil {
			return nil, err
		}
		pool.Reward.RewardRate = rate
		if tx.now > pool.Reward.LastUpdateTime {
			pool.Reward.LastUpdateTime = tx.now
		}
		pool.Reward.PeriodFinish = finish

		asset := pool.Asset
		value := cloneInt(amount)
		eff := &effect{
			event: PeriodStarted{
				Funder:       caller,
				Amount:       value,
				Leftover:     leftover,
				RewardRate:   cloneInt(rate),
				PeriodFinish: finish,
			},
		}
		// A zero top-up only re-spreads the leftover.
		if !value.IsZero() {
			eff.transfer = func(ctx context.Context) error {
				return e.bank.TransferIn(ctx, asset, caller, value)
			}
		}
		return eff, nil
	})
}

// SetRewardsDuration changes the length of the next period. It is only
// allowed strictly after the current period has finished.
func (e *Engine) SetRewardsDuration(ctx context.Context, caller common.Address, seconds uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if seconds == 0 {
		return ErrZeroDuration
	}
	return e.execute(ctx, "set_rewards_duration", func(tx *txn) (*effect, error) {
		if tx.now <= tx.pool.Reward.PeriodFinish {
			return nil, ErrPeriodActive
		}
		tx.pool.Reward.RewardsDuration = seconds
		return &effect{event: DurationUpdated{Duration: seconds}}, nil
	})
}

// SetCooldownPeriod changes the withdrawal cooldown. Pending requests are
// measured against the new value when they complete.
func (e *Engine) SetCooldownPeriod(ctx context.Context, caller common.Address, seconds uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	return e.execute(ctx, "set_cooldown_period", func(tx *txn) (*effect, error) {
		tx.pool.CooldownPeriod = seconds
		return &effect{event: CooldownUpdated{Period: seconds}}, nil
	})
}

// SetAssetOnce binds the pool to its asset. It can only succeed once.
func (e *Engine) SetAssetOnce(ctx context.Context, caller common.Address, asset common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if asset == (common.Address{}) {
		return ErrInvalidAsset
	}
	return e.execute(ctx, "set_asset", func(tx *txn) (*effect, error) {
		if tx.pool.AssetConfigured() {
			return nil, ErrAssetAlreadySet
		}
		tx.pool.Asset = asset
		return &effect{event: AssetConfigured{Asset: asset}}, nil
	})
}

// RewardForCurrentDuration returns rewardRate * rewardsDuration.
func (e *Engine) RewardForCurrentDuration() (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(pool *Pool, _ uint64) error {
		value, err := checkedMul(pool.Reward.RewardRate, uint256.NewInt(pool.Reward.RewardsDuration))
		out = value
		return err
	})
	return out, err
}

// RewardState returns a copy of the committed accumulator.
func (e *Engine) RewardState() (GlobalRewardState, error) {
	var out GlobalRewardState
	err := e.view(func(pool *Pool, _ uint64) error {
		out = pool.Reward.Clone()
		return nil
	})
	return out, err
}

// PoolView summarises the pool as of now.
func (e *Engine) PoolView() (*PoolView, error) {
	var out *PoolView
	err := e.view(func(pool *Pool, now uint64) error {
		current, err := pool.rewardPerUnit(now)
		if err != nil {
			return err
		}
		forDuration, err := checkedMul(pool.Reward.RewardRate, uint256.NewInt(pool.Reward.RewardsDuration))
		if err != nil {
			return err
		}
		out = &PoolView{
			TotalStaked:       cloneInt(pool.TotalStaked),
			RewardRate:        cloneInt(pool.Reward.RewardRate),
			RewardsDuration:   pool.Reward.RewardsDuration,
			PeriodFinish:      pool.Reward.PeriodFinish,
			LastUpdateTime:    pool.Reward.LastUpdateTime,
			RewardPerUnit:     current,
			RewardForDuration: forDuration,
			CooldownPeriod:    pool.CooldownPeriod,
			Asset:             pool.Asset,
			EffectiveTime:     pool.effectiveTime(now),
		}
		return nil
	})
	return out, err
}
