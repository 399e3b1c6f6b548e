package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stakepool/native/stakepool"
	"stakepool/services/stakepoold/config"
)

const (
	ownerHex = "0x00000000000000000000000000000000000000aa"
	vaultHex = "0x00000000000000000000000000000000000000bb"
	assetHex = "0x00000000000000000000000000000000000000cc"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Config{
		Owner:   ownerHex,
		Custody: vaultHex,
		Asset:   assetHex,
		Store:   config.StoreConfig{Backend: backend},
		Journal: config.JournalConfig{DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"},
		Bank: config.BankConfig{Genesis: []config.GenesisCredit{
			{Asset: assetHex, Holder: ownerHex, Amount: "5000"},
		}},
	}
	if backend != config.BackendMemory {
		cfg.Store.Path = filepath.Join(t.TempDir(), "pool.db")
	}
	return cfg
}

func newTestEngine(cfg config.Config, deps *dependencies) *stakepool.Engine {
	engine := stakepool.NewEngine(cfg.OwnerAddress(), stakepool.Params{
		CooldownPeriod:  time.Hour,
		RewardsDuration: 300 * time.Second,
	})
	engine.SetState(deps.store)
	engine.SetTransferer(deps.book)
	engine.SetEmitter(deps.journal)
	return engine
}

func TestBootstrapIsIdempotent(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendLevelDB, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			cfg := testConfig(t, backend)
			deps, err := openDependencies(cfg, logger)
			require.NoError(t, err)
			defer deps.Close()

			engine := newTestEngine(cfg, deps)
			ctx := context.Background()
			require.NoError(t, bootstrap(ctx, cfg, engine, deps))
			require.NoError(t, bootstrap(ctx, cfg, engine, deps))

			balance, err := deps.book.BalanceOf(common.HexToAddress(assetHex), common.HexToAddress(ownerHex))
			require.NoError(t, err)
			require.Equal(t, uint64(5000), balance.Uint64())

			view, err := engine.PoolView()
			require.NoError(t, err)
			require.Equal(t, common.HexToAddress(assetHex), view.Asset)

			entries, err := deps.journal.Recent(ctx, 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			require.Equal(t, "stakepool.asset_configured", entries[0].Type)
		})
	}
}

func TestBoltBackendKeepsCustodyAcrossRestart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, config.BackendBolt)
	ctx := context.Background()
	owner := common.HexToAddress(ownerHex)
	asset := common.HexToAddress(assetHex)
	custody := common.HexToAddress(vaultHex)

	deps, err := openDependencies(cfg, logger)
	require.NoError(t, err)
	engine := newTestEngine(cfg, deps)
	require.NoError(t, bootstrap(ctx, cfg, engine, deps))
	require.NoError(t, engine.Deposit(ctx, owner, uint256.NewInt(1000)))
	deps.Close()

	deps, err = openDependencies(cfg, logger)
	require.NoError(t, err)
	defer deps.Close()
	engine = newTestEngine(cfg, deps)
	require.NoError(t, bootstrap(ctx, cfg, engine, deps))

	total, err := engine.TotalStaked()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), total.Uint64())
	held, err := deps.book.BalanceOf(asset, custody)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), held.Uint64())
	remaining, err := deps.book.BalanceOf(asset, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), remaining.Uint64())
}

func TestServerSettingsFromConfig(t *testing.T) {
	limits := rateLimits(map[string]config.Limit{"ledger": {RequestsPerMinute: 90, Burst: 3}})
	require.Equal(t, 90.0, limits["ledger"].RequestsPerMinute)
	require.Equal(t, 3, limits["ledger"].Burst)

	auth := authSettings(config.AuthConfig{HMACSecret: "s", TrustSubjectHeader: true})
	require.False(t, auth.Enabled)
	require.True(t, auth.TrustSubjectHeader)
	require.Equal(t, "s", auth.HMACSecret)
}

func TestOpenDependenciesRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Store.Backend = "redis"
	_, err := openDependencies(cfg, slog.Default())
	require.Error(t, err)
}
