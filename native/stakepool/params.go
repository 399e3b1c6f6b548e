package stakepool

import (
	"fmt"
	"time"
)

const moduleName = "stakepool"

const (
	// DefaultCooldownPeriod is the waiting period between requesting and
	// completing a withdrawal.
	DefaultCooldownPeriod = 14 * 24 * time.Hour
	// DefaultRewardsDuration is the length of a funded reward period.
	DefaultRewardsDuration = 30 * 24 * time.Hour
)

// Params seeds the pool record the first time the engine touches an empty
// store. Later changes go through SetCooldownPeriod and SetRewardsDuration.
type Params struct {
	CooldownPeriod  time.Duration
	RewardsDuration time.Duration
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		CooldownPeriod:  DefaultCooldownPeriod,
		RewardsDuration: DefaultRewardsDuration,
	}
}

// Validate ensures the parameters can seed a usable pool.
func (p Params) Validate() error {
	if p.CooldownPeriod < 0 {
		return fmt.Errorf("cooldown period must not be negative")
	}
	if p.RewardsDuration < time.Second {
		return fmt.Errorf("rewards duration must be at least one second")
	}
	return nil
}

func (p Params) genesis() *Pool {
	pool := &Pool{
		Reward: GlobalRewardState{
			RewardsDuration: uint64(p.RewardsDuration / time.Second),
		},
		CooldownPeriod: uint64(p.CooldownPeriod / time.Second),
	}
	pool.normalize()
	return pool
}

// Params returns the parameters currently applied by the pool.
func (e *Engine) Params() (Params, error) {
	var out Params
	err := e.view(func(pool *Pool, _ uint64) error {
		out = Params{
			CooldownPeriod:  time.Duration(pool.CooldownPeriod) * time.Second,
			RewardsDuration: time.Duration(pool.Reward.RewardsDuration) * time.Second,
		}
		return nil
	})
	return out, err
}
