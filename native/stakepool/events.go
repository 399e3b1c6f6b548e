package stakepool

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/core/types"
)

const (
	EventTypeDeposited           = "stakepool.deposited"
	EventTypeWithdrawalRequested = "stakepool.withdrawal_requested"
	EventTypeWithdrawalCompleted = "stakepool.withdrawal_completed"
	EventTypeWithdrawalCancelled = "stakepool.withdrawal_cancelled"
	EventTypeRewardClaimed       = "stakepool.reward_claimed"
	EventTypePeriodStarted       = "stakepool.period_started"
	EventTypeDurationUpdated     = "stakepool.duration_updated"
	EventTypeCooldownUpdated     = "stakepool.cooldown_updated"
	EventTypeAssetConfigured     = "stakepool.asset_configured"
)

// Deposited is emitted when principal enters the pool.
type Deposited struct {
	Account common.Address
	Amount  *uint256.Int
}

func (Deposited) EventType() string { return EventTypeDeposited }

func (e Deposited) Event() *types.Event {
	return accountEvent(EventTypeDeposited, e.Account, e.Amount)
}

// WithdrawalRequested is emitted when principal leaves the earning pool and
// enters cooldown.
type WithdrawalRequested struct {
	Account     common.Address
	Amount      *uint256.Int
	RequestedAt uint64
	AvailableAt uint64
}

func (WithdrawalRequested) EventType() string { return EventTypeWithdrawalRequested }

func (e WithdrawalRequested) Event() *types.Event {
	ev := accountEvent(EventTypeWithdrawalRequested, e.Account, e.Amount)
	ev.Attributes["requestedAt"] = strconv.FormatUint(e.RequestedAt, 10)
	ev.Attributes["availableAt"] = strconv.FormatUint(e.AvailableAt, 10)
	return ev
}

// WithdrawalCompleted is emitted once pending principal is paid out.
type WithdrawalCompleted struct {
	Account common.Address
	Amount  *uint256.Int
}

func (WithdrawalCompleted) EventType() string { return EventTypeWithdrawalCompleted }

func (e WithdrawalCompleted) Event() *types.Event {
	return accountEvent(EventTypeWithdrawalCompleted, e.Account, e.Amount)
}

// WithdrawalCancelled is emitted when pending principal re-enters the pool.
type WithdrawalCancelled struct {
	Account common.Address
	Amount  *uint256.Int
}

func (WithdrawalCancelled) EventType() string { return EventTypeWithdrawalCancelled }

func (e WithdrawalCancelled) Event() *types.Event {
	return accountEvent(EventTypeWithdrawalCancelled, e.Account, e.Amount)
}

// RewardClaimed is emitted when accrued rewards are paid out.
type RewardClaimed struct {
	Account common.Address
	Amount  *uint256.Int
}

func (RewardClaimed) EventType() string { return EventTypeRewardClaimed }

func (e RewardClaimed) Event() *types.Event {
	return accountEvent(EventTypeRewardClaimed, e.Account, e.Amount)
}

// PeriodStarted is emitted when the owner funds a reward period.
type PeriodStarted struct {
	Funder       common.Address
	Amount       *uint256.Int
	Leftover     *uint256.Int
	RewardRate   *uint256.Int
	PeriodFinish uint64
}

func (PeriodStarted) EventType() string { return EventTypePeriodStarted }

func (e PeriodStarted) Event() *types.Event {
	ev := accountEvent(EventTypePeriodStarted, e.Funder, e.Amount)
	ev.Attributes["rewardRate"] = formatAmount(e.RewardRate)
	ev.Attributes["periodFinish"] = strconv.FormatUint(e.PeriodFinish, 10)
	if e.Leftover != nil && !e.Leftover.IsZero() {
		ev.Attributes["leftover"] = formatAmount(e.Leftover)
	}
	return ev
}

// DurationUpdated is emitted when the next period length changes.
type DurationUpdated struct {
	Duration uint64
}

func (DurationUpdated) EventType() string { return EventTypeDurationUpdated }

func (e DurationUpdated) Event() *types.Event {
	return &types.Event{Type: EventTypeDurationUpdated, Attributes: map[string]string{
		"duration": strconv.FormatUint(e.Duration, 10),
	}}
}

// CooldownUpdated is emitted when the withdrawal cooldown changes.
type CooldownUpdated struct {
	Period uint64
}

func (CooldownUpdated) EventType() string { return EventTypeCooldownUpdated }

func (e CooldownUpdated) Event() *types.Event {
	return &types.Event{Type: EventTypeCooldownUpdated, Attributes: map[string]string{
		"period": strconv.FormatUint(e.Period, 10),
	}}
}

// AssetConfigured is emitted once the pool asset is bound.
type AssetConfigured struct {
	Asset common.Address
}

func (AssetConfigured) EventType() string { return EventTypeAssetConfigured }

func (e AssetConfigured) Event() *types.Event {
	return &types.Event{Type: EventTypeAssetConfigured, Attributes: map[string]string{
		"asset": e.Asset.Hex(),
	}}
}

func accountEvent(eventType string, addr common.Address, amount *uint256.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		types.AccountAttribute: addr.Hex(),
		"amount":               formatAmount(amount),
	}}
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
