package poolstore

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/native/stakepool"
	"stakepool/storage"
)

type ledgerStore interface {
	stakepool.Store
	stakepool.AccountIterator
}

func samplePool() *stakepool.Pool {
	return &stakepool.Pool{
		Reward: stakepool.GlobalRewardState{
			RewardRate:           uint256.NewInt(10),
			RewardsDuration:      30,
			PeriodFinish:         1_700_000_030,
			LastUpdateTime:       1_700_000_000,
			RewardPerTokenStored: new(uint256.Int).Mul(uint256.NewInt(3), stakepool.ScaleUnit()),
		},
		TotalStaked:    uint256.NewInt(1500),
		CooldownPeriod: 3600,
		Asset:          common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
}

func sampleAccount(addr common.Address, staked uint64) *stakepool.AccountState {
	acct := stakepool.NewAccountState(addr)
	acct.StakedBalance = uint256.NewInt(staked)
	acct.PendingUnstakeAmount = uint256.NewInt(5)
	acct.UnstakeRequestedAt = 1_700_000_010
	acct.RewardPerTokenPaid = uint256.NewInt(7)
	acct.AccruedRewards = uint256.NewInt(11)
	return acct
}

func runStoreContract(t *testing.T, store ledgerStore) {
	t.Helper()

	pool, err := store.LoadPool()
	if err != nil {
		t.Fatalf("load empty pool: %v", err)
	}
	if pool != nil {
		t.Fatalf("expected nil pool before first commit, got %+v", pool)
	}
	alice := common.HexToAddress("0x01")
	acct, err := store.LoadAccount(alice)
	if err != nil {
		t.Fatalf("load empty account: %v", err)
	}
	if acct != nil {
		t.Fatalf("expected nil account before first commit")
	}

	bob := common.HexToAddress("0x02")
	want := samplePool()
	if err := store.Commit(want, []*stakepool.AccountState{sampleAccount(alice, 1000), sampleAccount(bob, 500)}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := store.LoadPool()
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	if !got.TotalStaked.Eq(want.TotalStaked) || !got.Reward.RewardRate.Eq(want.Reward.RewardRate) {
		t.Fatalf("pool mismatch: got %+v", got)
	}
	if !got.Reward.RewardPerTokenStored.Eq(want.Reward.RewardPerTokenStored) {
		t.Fatalf("reward per token mismatch: %s", got.Reward.RewardPerTokenStored)
	}
	if got.Reward.PeriodFinish != want.Reward.PeriodFinish || got.Reward.LastUpdateTime != want.Reward.LastUpdateTime {
		t.Fatalf("timestamps mismatch: %+v", got.Reward)
	}
	if got.CooldownPeriod != 3600 || got.Asset != want.Asset {
		t.Fatalf("params mismatch: cooldown=%d asset=%s", got.CooldownPeriod, got.Asset.Hex())
	}

	loaded, err := store.LoadAccount(alice)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if loaded.Address != alice || loaded.StakedBalance.Uint64() != 1000 || loaded.UnstakeRequestedAt != 1_700_000_010 {
		t.Fatalf("account mismatch: %+v", loaded)
	}
	if loaded.AccruedRewards.Uint64() != 11 || loaded.PendingUnstakeAmount.Uint64() != 5 {
		t.Fatalf("account balances mismatch: %+v", loaded)
	}

	var seen []common.Address
	sum := new(uint256.Int)
	if err := store.ForEachAccount(func(a *stakepool.AccountState) error {
		seen = append(seen, a.Address)
		sum.Add(sum, a.StakedBalance)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || seen[0] != alice || seen[1] != bob {
		t.Fatalf("unexpected iteration order: %v", seen)
	}
	if sum.Uint64() != 1500 {
		t.Fatalf("expected summed stake 1500, got %s", sum)
	}
}

func TestKVStoreMemDB(t *testing.T) {
	runStoreContract(t, NewKVStore(storage.NewMemDB()))
}

func TestKVStoreLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	runStoreContract(t, NewKVStore(db))
}

func TestBoltStore(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer store.Close()
	runStoreContract(t, store)
}

func TestKVStoreCommitOverwrites(t *testing.T) {
	store := NewKVStore(storage.NewMemDB())
	alice := common.HexToAddress("0x01")
	if err := store.Commit(samplePool(), []*stakepool.AccountState{sampleAccount(alice, 10)}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	updated := sampleAccount(alice, 0)
	updated.PendingUnstakeAmount = new(uint256.Int)
	pool := samplePool()
	pool.TotalStaked = new(uint256.Int)
	if err := store.Commit(pool, []*stakepool.AccountState{updated}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	acct, err := store.LoadAccount(alice)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !acct.StakedBalance.IsZero() || acct.HasPendingWithdrawal() {
		t.Fatalf("expected zeroed account, got %+v", acct)
	}
}
