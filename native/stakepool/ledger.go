package stakepool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Deposit moves amount from account into custody and adds it to the
// account's earning principal.
func (e *Engine) Deposit(ctx context.Context, account common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return e.execute(ctx, "deposit", func(tx *txn) (*effect, error) {
		if !tx.pool.AssetConfigured() {
			return nil, ErrAssetNotConfigured
		}
		acct, err := tx.account(e, account)
		if err != nil {
			return nil, err
		}
		if err := tx.checkpoint(acct); err != nil {
			return nil, err
		}
		staked, err := checkedAdd(acct.StakedBalance, amount)
		if err != nil {
			return nil, err
		}
		total, err := checkedAdd(tx.pool.TotalStaked, amount)
		if err != nil {
			return nil, err
		}
		acct.StakedBalance = staked
		tx.pool.TotalStaked = total

		asset := tx.pool.Asset
		value := cloneInt(amount)
		return &effect{
			transfer: func(ctx context.Context) error {
				return e.bank.TransferIn(ctx, asset, account, value)
			},
			event: Deposited{Account: account, Amount: value},
		}, nil
	})
}

// BalanceOf returns the principal addr currently has earning rewards.
func (e *Engine) BalanceOf(addr common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(*Pool, uint64) error {
		acct, err := e.loadAccount(addr)
		if err != nil {
			return err
		}
		out = acct.StakedBalance
		return nil
	})
	return out, err
}

// TotalStaked returns the aggregate earning principal.
func (e *Engine) TotalStaked() (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(pool *Pool, _ uint64) error {
		out = cloneInt(pool.TotalStaked)
		return nil
	})
	return out, err
}

// AccountIterator is implemented by stores that can enumerate every account
// entry.
type AccountIterator interface {
	ForEachAccount(fn func(*AccountState) error) error
}

// AuditReport compares the per-account principal with the aggregate.
type AuditReport struct {
	Accounts             int
	SumStaked            *uint256.Int
	SumPending           *uint256.Int
	TotalStaked          *uint256.Int
	Consistent           bool
	RewardPerTokenStored *uint256.Int
}

// Audit recomputes sum(StakedBalance) over the store and checks it against
// TotalStaked. The store must implement AccountIterator.
func (e *Engine) Audit() (*AuditReport, error) {
	iter, ok := e.state.(AccountIterator)
	if !ok {
		return nil, fmt.Errorf("stakepool: store %T cannot enumerate accounts", e.state)
	}
	report := &AuditReport{SumStaked: new(uint256.Int), SumPending: new(uint256.Int)}
	err := e.view(func(pool *Pool, _ uint64) error {
		report.TotalStaked = cloneInt(pool.TotalStaked)
		report.RewardPerTokenStored = cloneInt(pool.Reward.RewardPerTokenStored)
		return iter.ForEachAccount(func(acct *AccountState) error {
			acct.normalize()
			report.Accounts++
			sum, err := checkedAdd(report.SumStaked, acct.StakedBalance)
			if err != nil {
				return err
			}
			pending, err := checkedAdd(report.SumPending, acct.PendingUnstakeAmount)
			if err != nil {
				return err
			}
			report.SumStaked, report.SumPending = sum, pending
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	report.Consistent = report.SumStaked.Eq(report.TotalStaked)
	return report, nil
}
