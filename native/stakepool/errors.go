package stakepool

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine wraps exactly one of
// these so callers can branch with errors.Is without enumerating reasons.
var (
	ErrValidation   = errors.New("stakepool: validation failed")
	ErrState        = errors.New("stakepool: invalid state")
	ErrConfig       = errors.New("stakepool: configuration rejected")
	ErrTransfer     = errors.New("stakepool: transfer failed")
	ErrUnauthorized = errors.New("stakepool: caller is not the owner")
	ErrPaused       = errors.New("stakepool: module paused")
)

var (
	ErrInvalidAmount      = categorise(ErrValidation, "amount must be positive")
	ErrInsufficientStake  = categorise(ErrValidation, "amount exceeds staked balance")
	ErrArithmeticOverflow = categorise(ErrValidation, "arithmetic overflow")

	ErrWithdrawalPending   = categorise(ErrState, "withdrawal already pending")
	ErrNoPendingWithdrawal = categorise(ErrState, "no pending withdrawal")
	ErrCooldownActive      = categorise(ErrState, "cooldown has not elapsed")
	ErrNothingAccrued      = categorise(ErrState, "nothing accrued")
	ErrReentrantCall       = categorise(ErrState, "re-entrant call from transfer")

	ErrAssetAlreadySet    = categorise(ErrConfig, "asset already configured")
	ErrInvalidAsset       = categorise(ErrConfig, "asset reference invalid")
	ErrAssetNotConfigured = categorise(ErrConfig, "asset not configured")
	ErrPeriodActive       = categorise(ErrConfig, "reward period still active")
	ErrZeroDuration       = categorise(ErrConfig, "rewards duration must be positive")
	ErrZeroRewardRate     = categorise(ErrConfig, "reward rate computes to zero")
	ErrInvalidParams      = categorise(ErrConfig, "pool parameters invalid")
)

func categorise(category error, reason string) error {
	return fmt.Errorf("%w: %s", category, reason)
}

func transferError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransfer, op, err)
}
