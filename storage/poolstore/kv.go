package poolstore

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakepool/native/stakepool"
	"stakepool/storage"
)

var (
	poolKey          = []byte("stakepool/pool")
	accountKeyPrefix = []byte("stakepool/account/")
)

func accountKey(addr common.Address) []byte {
	key := make([]byte, 0, len(accountKeyPrefix)+common.AddressLength)
	key = append(key, accountKeyPrefix...)
	return append(key, addr.Bytes()...)
}

// KVStore keeps the ledger in a storage.Database. Every commit is written
// through a single batch.
type KVStore struct {
	db storage.Database
}

// NewKVStore wraps db.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) LoadPool() (*stakepool.Pool, error) {
	data, err := s.db.Get(poolKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePool(data)
}

func (s *KVStore) LoadAccount(addr common.Address) (*stakepool.AccountState, error) {
	data, err := s.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acct, err := decodeAccount(data)
	if err != nil {
		return nil, err
	}
	acct.Address = addr
	return acct, nil
}

func (s *KVStore) Commit(pool *stakepool.Pool, accounts []*stakepool.AccountState) error {
	batch := s.db.NewBatch()
	encoded, err := encodePool(pool)
	if err != nil {
		return err
	}
	batch.Put(poolKey, encoded)
	for _, acct := range accounts {
		if acct == nil {
			continue
		}
		data, err := encodeAccount(acct)
		if err != nil {
			return err
		}
		batch.Put(accountKey(acct.Address), data)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("poolstore: commit: %w", err)
	}
	return nil
}

// ForEachAccount visits every stored account in key order.
func (s *KVStore) ForEachAccount(fn func(*stakepool.AccountState) error) error {
	return s.db.Iterate(accountKeyPrefix, func(key, value []byte) error {
		acct, err := decodeAccount(value)
		if err != nil {
			return err
		}
		acct.Address = common.BytesToAddress(key[len(accountKeyPrefix):])
		return fn(acct)
	})
}
