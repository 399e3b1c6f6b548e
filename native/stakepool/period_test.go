package stakepool

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestFundPeriodRollsOverLeftover(t *testing.T) {
	h := newHarness(t, 30, 3600)
	h.deposit(t, alice, 100)
	h.fund(t, 300)

	h.clock.Advance(25)
	h.events.Reset()
	h.fund(t, 250)

	state, err := h.engine.RewardState()
	if err != nil {
		t.Fatalf("reward state: %v", err)
	}
	if state.RewardRate.Uint64() != 10 {
		t.Fatalf("expected rolled-over rate 10, got %s", state.RewardRate)
	}
	if state.LastUpdateTime != genesisTime+25 || state.PeriodFinish != genesisTime+55 {
		t.Fatalf("unexpected period bounds: %+v", state)
	}
	evs := h.events.Events()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	started, ok := evs[0].(PeriodStarted)
	if !ok {
		t.Fatalf("expected PeriodStarted, got %T", evs[0])
	}
	if started.Leftover.Uint64() != 50 || started.Amount.Uint64() != 250 || started.Funder != testOwner {
		t.Fatalf("unexpected event payload: %+v", started)
	}
	rendered := started.Event()
	if rendered.Attributes["rewardRate"] != "10" {
		t.Fatalf("unexpected rendered attributes: %v", rendered.Attributes)
	}
	reward, err := h.engine.RewardForCurrentDuration()
	if err != nil {
		t.Fatalf("reward for duration: %v", err)
	}
	if reward.Uint64() != 300 {
		t.Fatalf("expected reward for duration 300, got %s", reward)
	}
}

func TestFundPeriodRejections(t *testing.T) {
	h := newHarness(t, 300, 3600)
	ctx := context.Background()

	requireCategory(t, h.engine.FundPeriod(ctx, alice, uint256.NewInt(3000)), ErrUnauthorized, nil)
	requireCategory(t, h.engine.FundPeriod(ctx, testOwner, nil), ErrValidation, ErrInvalidAmount)
	requireCategory(t, h.engine.FundPeriod(ctx, testOwner, new(uint256.Int)), ErrConfig, ErrZeroRewardRate)
	requireCategory(t, h.engine.FundPeriod(ctx, testOwner, uint256.NewInt(299)), ErrConfig, ErrZeroRewardRate)
	if len(h.bank.transfers) != 0 {
		t.Fatalf("rejected funding moved funds: %+v", h.bank.transfers)
	}
	state, _ := h.engine.RewardState()
	if !state.RewardRate.IsZero() || state.PeriodFinish != 0 {
		t.Fatalf("rejected funding changed state: %+v", state)
	}
}

func TestZeroFundingRestartsActivePeriod(t *testing.T) {
	h := newHarness(t, 30, 3600)
	ctx := context.Background()
	h.fund(t, 300)
	h.clock.Advance(25)
	transfers := len(h.bank.transfers)

	if err := h.engine.FundPeriod(ctx, testOwner, new(uint256.Int)); err != nil {
		t.Fatalf("zero top-up: %v", err)
	}
	state, err := h.engine.RewardState()
	if err != nil {
		t.Fatalf("reward state: %v", err)
	}
	if state.RewardRate.Uint64() != 1 {
		t.Fatalf("expected leftover 50 over 30s to give rate 1, got %s", state.RewardRate)
	}
	if state.PeriodFinish != genesisTime+25+30 {
		t.Fatalf("period not restarted: finish %d", state.PeriodFinish)
	}
	if len(h.bank.transfers) != transfers {
		t.Fatalf("zero top-up moved funds: %+v", h.bank.transfers[transfers:])
	}
	if got := h.events.Types(); got[len(got)-1] != EventTypePeriodStarted {
		t.Fatalf("expected period started event last, got %v", got)
	}
}

func TestSetRewardsDurationRequiresFinishedPeriod(t *testing.T) {
	h := newHarness(t, 300, 3600)
	ctx := context.Background()
	h.fund(t, 3000)

	requireCategory(t, h.engine.SetRewardsDuration(ctx, testOwner, 600), ErrConfig, ErrPeriodActive)
	h.clock.Advance(300)
	requireCategory(t, h.engine.SetRewardsDuration(ctx, testOwner, 600), ErrConfig, ErrPeriodActive)
	h.clock.Advance(1)
	requireCategory(t, h.engine.SetRewardsDuration(ctx, testOwner, 0), ErrConfig, ErrZeroDuration)
	requireCategory(t, h.engine.SetRewardsDuration(ctx, alice, 600), ErrUnauthorized, nil)
	if err := h.engine.SetRewardsDuration(ctx, testOwner, 600); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	params, err := h.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.RewardsDuration != 600*time.Second || params.CooldownPeriod != time.Hour {
		t.Fatalf("unexpected params %+v", params)
	}
	if got := h.events.Types(); got[len(got)-1] != EventTypeDurationUpdated {
		t.Fatalf("expected duration event last, got %v", got)
	}
}

func TestSetAssetOnce(t *testing.T) {
	engine := NewEngine(testOwner, DefaultParams())
	engine.SetState(newMockStore())
	engine.SetTransferer(&mockBank{})
	engine.SetClock(&manualClock{now: genesisTime})
	ctx := context.Background()

	requireCategory(t, engine.Deposit(ctx, alice, uint256.NewInt(1)), ErrConfig, ErrAssetNotConfigured)
	requireCategory(t, engine.SetAssetOnce(ctx, testOwner, common.Address{}), ErrConfig, ErrInvalidAsset)
	requireCategory(t, engine.SetAssetOnce(ctx, alice, testAsset), ErrUnauthorized, nil)
	if err := engine.SetAssetOnce(ctx, testOwner, testAsset); err != nil {
		t.Fatalf("set asset: %v", err)
	}
	requireCategory(t, engine.SetAssetOnce(ctx, testOwner, alice), ErrConfig, ErrAssetAlreadySet)

	view, err := engine.PoolView()
	if err != nil {
		t.Fatalf("pool view: %v", err)
	}
	if view.Asset != testAsset {
		t.Fatalf("expected asset %s, got %s", testAsset.Hex(), view.Asset.Hex())
	}
	if view.CooldownPeriod != uint64(DefaultCooldownPeriod/time.Second) || view.RewardsDuration != uint64(DefaultRewardsDuration/time.Second) {
		t.Fatalf("expected default params, got %+v", view)
	}
}
