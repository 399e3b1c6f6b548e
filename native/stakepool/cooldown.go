package stakepool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RequestWithdrawal moves amount out of the earning pool into a pending
// withdrawal. Only one request may be outstanding per account.
func (e *Engine) RequestWithdrawal(ctx context.Context, account common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return e.execute(ctx, "request_withdrawal", func(tx *txn) (*effect, error) {
		acct, err := tx.account(e, account)
		if err != nil {
			return nil, err
		}
		if acct.HasPendingWithdrawal() {
			return nil, ErrWithdrawalPending
		}
		if amount.Gt(acct.StakedBalance) {
			return nil, ErrInsufficientStake
		}
		if err := tx.checkpoint(acct); err != nil {
			return nil, err
		}
		staked, err := checkedSub(acct.StakedBalance, amount)
		if err != nil {
			return nil, err
		}
		total, err := checkedSub(tx.pool.TotalStaked, amount)
		if err != nil {
			return nil, err
		}
		availableAt, err := checkedAddSeconds(tx.now, tx.pool.CooldownPeriod)
		if err != nil {
			return nil, err
		}
		acct.StakedBalance = staked
		acct.PendingUnstakeAmount = cloneInt(amount)
		acct.UnstakeRequestedAt = tx.now
		tx.pool.TotalStaked = total

		return &effect{event: WithdrawalRequested{
			Account:     account,
			Amount:      cloneInt(amount),
			RequestedAt: tx.now,
			AvailableAt: availableAt,
		}}, nil
	})
}

// CompleteWithdrawal pays out the pending amount once the cooldown, as
// currently configured, has elapsed. The boundary is inclusive. Rewards are
// not checkpointed: the principal stopped earning at request time.
func (e *Engine) CompleteWithdrawal(ctx context.Context, account common.Address) error {
	return e.execute(ctx, "complete_withdrawal", func(tx *txn) (*effect, error) {
		acct, err := tx.account(e, account)
		if err != nil {
			return nil, err
		}
		if !acct.HasPendingWithdrawal() {
			return nil, ErrNoPendingWithdrawal
		}
		availableAt, err := checkedAddSeconds(acct.UnstakeRequestedAt, tx.pool.CooldownPeriod)
		if err != nil {
			return nil, err
		}
		if tx.now < availableAt {
			return nil, ErrCooldownActive
		}
		amount := cloneInt(acct.PendingUnstakeAmount)
		acct.PendingUnstakeAmount = new(uint256.Int)
		acct.UnstakeRequestedAt = 0

		asset := tx.pool.Asset
		return &effect{
			transfer: func(ctx context.Context) error {
				return e.bank.TransferOut(ctx, asset, account, amount)
			},
			event: WithdrawalCompleted{Account: account, Amount: amount},
		}, nil
	})
}

// CancelWithdrawal returns the pending amount to the earning pool as of now.
func (e *Engine) CancelWithdrawal(ctx context.Context, account common.Address) error {
	return e.execute(ctx, "cancel_withdrawal", func(tx *txn) (*effect, error) {
		acct, err := tx.account(e, account)
		if err != nil {
			return nil, err
		}
		if !acct.HasPendingWithdrawal() {
			return nil, ErrNoPendingWithdrawal
		}
		if err := tx.checkpoint(acct); err != nil {
			return nil, err
		}
		amount := cloneInt(acct.PendingUnstakeAmount)
		staked, err := checkedAdd(acct.StakedBalance, amount)
		if err != nil {
			return nil, err
		}
		total, err := checkedAdd(tx.pool.TotalStaked, amount)
		if err != nil {
			return nil, err
		}
		acct.StakedBalance = staked
		acct.PendingUnstakeAmount = new(uint256.Int)
		acct.UnstakeRequestedAt = 0
		tx.pool.TotalStaked = total

		return &effect{event: WithdrawalCancelled{Account: account, Amount: amount}}, nil
	})
}

// PendingWithdrawal returns the outstanding request for addr. AvailableAt is
// computed from the current cooldown and is zero when nothing is pending.
func (e *Engine) PendingWithdrawal(addr common.Address) (PendingWithdrawal, error) {
	out := PendingWithdrawal{Amount: new(uint256.Int)}
	err := e.view(func(pool *Pool, _ uint64) error {
		acct, err := e.loadAccount(addr)
		if err != nil {
			return err
		}
		out = pendingOf(pool, acct)
		return nil
	})
	return out, err
}

func pendingOf(pool *Pool, acct *AccountState) PendingWithdrawal {
	if !acct.HasPendingWithdrawal() {
		return PendingWithdrawal{Amount: new(uint256.Int)}
	}
	availableAt, err := checkedAddSeconds(acct.UnstakeRequestedAt, pool.CooldownPeriod)
	if err != nil {
		availableAt = ^uint64(0)
	}
	return PendingWithdrawal{Amount: cloneInt(acct.PendingUnstakeAmount), AvailableAt: availableAt}
}
