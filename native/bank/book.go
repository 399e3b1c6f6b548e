package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/storage"
)

var (
	// ErrInsufficientFunds is returned when the debited holder cannot cover
	// the transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount is returned for nil or zero amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("bank: balance overflow")
)

var balancePrefix = []byte("bank/balance/")

func balanceKey(asset, holder common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, asset.Bytes()...)
	return append(key, holder.Bytes()...)
}

// Book is an internal asset book. Balances are keyed by asset and holder;
// the pool's holdings sit under the custody address.
type Book struct {
	mu      sync.Mutex
	db      storage.Database
	custody common.Address
}

// NewBook returns a book storing balances in db with custody as the pool
// account.
func NewBook(db storage.Database, custody common.Address) *Book {
	return &Book{db: db, custody: custody}
}

// Custody returns the address holding pooled funds.
func (b *Book) Custody() common.Address {
	if b == nil {
		return common.Address{}
	}
	return b.custody
}

// BalanceOf returns the holder's balance of asset.
func (b *Book) BalanceOf(asset, holder common.Address) (*uint256.Int, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("bank: book not configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(asset, holder)
}

// Credit mints amount of asset to holder. Operators use it to seed
// participants and funders.
func (b *Book) Credit(asset, holder common.Address, amount *uint256.Int) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("bank: book not configured")
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current, err := b.balance(asset, holder)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return b.db.Put(balanceKey(asset, holder), encodeBalance(next))
}

// TransferIn moves amount of asset from the holder into custody.
func (b *Book) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	return b.move(ctx, asset, from, b.Custody(), amount)
}

// TransferOut pays amount of asset from custody to the holder.
func (b *Book) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return b.move(ctx, asset, b.Custody(), to, amount)
}

func (b *Book) move(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("bank: book not configured")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBalance, err := b.balance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBalance.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBalance, err := b.balance(asset, to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	debited := new(uint256.Int).Sub(fromBalance, amount)

	batch := b.db.NewBatch()
	batch.Put(balanceKey(asset, from), encodeBalance(debited))
	batch.Put(balanceKey(asset, to), encodeBalance(credited))
	return batch.Write()
}

func (b *Book) balance(asset, holder common.Address) (*uint256.Int, error) {
	data, err := b.db.Get(balanceKey(asset, holder))
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

func encodeBalance(v *uint256.Int) []byte {
	out := v.Bytes32()
	return out[:]
}
