package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stakepool/native/bank"
	"stakepool/native/stakepool"
	"stakepool/services/stakepool/journal"
	"stakepool/services/stakepoold/config"
	"stakepool/storage"
	"stakepool/storage/poolstore"
)

type dependencies struct {
	store   stakepool.Store
	book    *bank.Book
	journal *journal.Journal
	closers []func() error
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func openDependencies(cfg config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}
	fail := func(err error) (*dependencies, error) {
		deps.Close()
		return nil, err
	}

	var shared storage.Database
	switch cfg.Store.Backend {
	case config.BackendMemory:
		shared = storage.NewMemDB()
		deps.store = poolstore.NewKVStore(shared)
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Store.Path)
		if err != nil {
			return fail(fmt.Errorf("open leveldb store: %w", err))
		}
		deps.closers = append(deps.closers, closeDB(db))
		shared = db
		deps.store = poolstore.NewKVStore(db)
	case config.BackendBolt:
		store, err := poolstore.OpenBolt(cfg.Store.Path, nil)
		if err != nil {
			return fail(fmt.Errorf("open bolt store: %w", err))
		}
		deps.closers = append(deps.closers, store.Close)
		deps.store = store
	default:
		return fail(fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}

	bankDB := shared
	if path := cfg.BankPath(); path != "" {
		db, err := storage.NewLevelDB(path)
		if err != nil {
			return fail(fmt.Errorf("open bank database: %w", err))
		}
		deps.closers = append(deps.closers, closeDB(db))
		bankDB = db
	}
	deps.book = bank.NewBook(bankDB, cfg.CustodyAddress())

	j, err := journal.Open(cfg.Journal.DSN, logger)
	if err != nil {
		return fail(fmt.Errorf("open journal: %w", err))
	}
	deps.closers = append(deps.closers, j.Close)
	deps.journal = j
	return deps, nil
}

func closeDB(db storage.Database) func() error {
	return func() error {
		db.Close()
		return nil
	}
}

// bootstrap applies the configured asset and mints genesis balances into
// empty accounts so restarts do not credit twice.
func bootstrap(ctx context.Context, cfg config.Config, engine *stakepool.Engine, deps *dependencies) error {
	if asset, ok := cfg.AssetAddress(); ok {
		err := engine.SetAssetOnce(ctx, cfg.OwnerAddress(), asset)
		if err != nil && !errors.Is(err, stakepool.ErrAssetAlreadySet) {
			return fmt.Errorf("configure asset: %w", err)
		}
	}
	for i, raw := range cfg.Bank.Genesis {
		credit, err := raw.Parse()
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		balance, err := deps.book.BalanceOf(credit.Asset, credit.Holder)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		if !balance.IsZero() {
			continue
		}
		if err := deps.book.Credit(credit.Asset, credit.Holder, credit.Amount); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	return nil
}
