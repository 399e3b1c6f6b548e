package stakepool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/core/events"
)

var (
	testOwner = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	testAsset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol     = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

const genesisTime = 1_700_000_000

type mockStore struct {
	pool      *Pool
	accounts  map[common.Address]*AccountState
	commitErr error
	commits   int
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[common.Address]*AccountState)}
}

func (m *mockStore) LoadPool() (*Pool, error) {
	return m.pool.Clone(), nil
}

func (m *mockStore) LoadAccount(addr common.Address) (*AccountState, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

func (m *mockStore) Commit(pool *Pool, accounts []*AccountState) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	m.pool = pool.Clone()
	for _, acct := range accounts {
		m.accounts[acct.Address] = acct.Clone()
	}
	return nil
}

func (m *mockStore) ForEachAccount(fn func(*AccountState) error) error {
	addrs := make([]common.Address, 0, len(m.accounts))
	for addr := range m.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	for _, addr := range addrs {
		if err := fn(m.accounts[addr].Clone()); err != nil {
			return err
		}
	}
	return nil
}

type transfer struct {
	in     bool
	holder common.Address
	amount uint64
}

type mockBank struct {
	mu        sync.Mutex
	transfers []transfer
	failIn    error
	failOut   error
	onOut     func(ctx context.Context) error
}

func (b *mockBank) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	if b.failIn != nil {
		return b.failIn
	}
	b.mu.Lock()
	b.transfers = append(b.transfers, transfer{in: true, holder: from, amount: amount.Uint64()})
	b.mu.Unlock()
	return nil
}

func (b *mockBank) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	if b.onOut != nil {
		if err := b.onOut(ctx); err != nil {
			return err
		}
	}
	if b.failOut != nil {
		return b.failOut
	}
	b.mu.Lock()
	b.transfers = append(b.transfers, transfer{holder: to, amount: amount.Uint64()})
	b.mu.Unlock()
	return nil
}

func (b *mockBank) last() transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.transfers) == 0 {
		return transfer{}
	}
	return b.transfers[len(b.transfers)-1]
}

type manualClock struct {
	mu  sync.Mutex
	now int64
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *manualClock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

func (c *manualClock) Set(ts int64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

type harness struct {
	engine *Engine
	store  *mockStore
	bank   *mockBank
	clock  *manualClock
	events *events.Buffer
}

// newHarness returns an engine with the asset configured, the given
// rewards duration and cooldown in seconds.
func newHarness(t *testing.T, duration, cooldown uint64) *harness {
	t.Helper()
	params := Params{
		CooldownPeriod:  time.Duration(cooldown) * time.Second,
		RewardsDuration: time.Duration(duration) * time.Second,
	}
	h := &harness{
		engine: NewEngine(testOwner, params),
		store:  newMockStore(),
		bank:   &mockBank{},
		clock:  &manualClock{now: genesisTime},
		events: &events.Buffer{},
	}
	h.engine.SetState(h.store)
	h.engine.SetTransferer(h.bank)
	h.engine.SetClock(h.clock)
	h.engine.SetEmitter(h.events)
	if err := h.engine.SetAssetOnce(context.Background(), testOwner, testAsset); err != nil {
		t.Fatalf("set asset: %v", err)
	}
	h.events.Reset()
	return h
}

func (h *harness) deposit(t *testing.T, addr common.Address, amount uint64) {
	t.Helper()
	if err := h.engine.Deposit(context.Background(), addr, uint256.NewInt(amount)); err != nil {
		t.Fatalf("deposit %d for %s: %v", amount, addr.Hex(), err)
	}
}

func (h *harness) fund(t *testing.T, amount uint64) {
	t.Helper()
	if err := h.engine.FundPeriod(context.Background(), testOwner, uint256.NewInt(amount)); err != nil {
		t.Fatalf("fund %d: %v", amount, err)
	}
}

func (h *harness) earned(t *testing.T, addr common.Address) uint64 {
	t.Helper()
	value, err := h.engine.Earned(addr)
	if err != nil {
		t.Fatalf("earned: %v", err)
	}
	return value.Uint64()
}

func (h *harness) account(t *testing.T, addr common.Address) *AccountState {
	t.Helper()
	acct, err := h.store.LoadAccount(addr)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if acct == nil {
		return NewAccountState(addr)
	}
	return acct
}

func requireCategory(t *testing.T, err, category, specific error) {
	t.Helper()
	if !errors.Is(err, category) {
		t.Fatalf("expected category %v, got %v", category, err)
	}
	if specific != nil && !errors.Is(err, specific) {
		t.Fatalf("expected %v, got %v", specific, err)
	}
}
