package stakepool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ClaimReward settles account and pays out everything it has accrued.
func (e *Engine) ClaimReward(ctx context.Context, account common.Address) error {
	return e.execute(ctx, "claim_reward", func(tx *txn) (*effect, error) {
		acct, err := tx.account(e, account)
		if err != nil {
			return nil, err
		}
		if err := tx.checkpoint(acct); err != nil {
			return nil, err
		}
		if acct.AccruedRewards.IsZero() {
			return nil, ErrNothingAccrued
		}
		amount := cloneInt(acct.AccruedRewards)
		acct.AccruedRewards = new(uint256.Int)

		asset := tx.pool.Asset
		return &effect{
			transfer: func(ctx context.Context) error {
				return e.bank.TransferOut(ctx, asset, account, amount)
			},
			event: RewardClaimed{Account: account, Amount: amount},
		}, nil
	})
}

// Account returns a combined view of addr's principal, pending withdrawal
// and claimable reward.
func (e *Engine) Account(addr common.Address) (*AccountView, error) {
	var out *AccountView
	err := e.view(func(pool *Pool, now uint64) error {
		acct, err := e.loadAccount(addr)
		if err != nil {
			return err
		}
		current, err := pool.rewardPerUnit(now)
		if err != nil {
			return err
		}
		owed, err := earned(acct, current)
		if err != nil {
			return err
		}
		out = &AccountView{
			Address:     addr,
			Staked:      cloneInt(acct.StakedBalance),
			Pending:     pendingOf(pool, acct),
			Earned:      owed,
			RequestedAt: acct.UnstakeRequestedAt,
		}
		return nil
	})
	return out, err
}
