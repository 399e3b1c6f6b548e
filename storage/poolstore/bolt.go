package poolstore

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"stakepool/native/stakepool"
)

var (
	bucketPool     = []byte("pool")
	bucketAccounts = []byte("accounts")
	poolRecordKey  = []byte("state")
)

// BoltStore keeps the ledger in a BoltDB file. Commits run inside one
// read-write transaction.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (and migrates) the BoltDB file at path.
func OpenBolt(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPool, bucketAccounts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) LoadPool() (*stakepool.Pool, error) {
	var pool *stakepool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPool).Get(poolRecordKey)
		if len(data) == 0 {
			return nil
		}
		decoded, err := decodePool(data)
		if err != nil {
			return err
		}
		pool = decoded
		return nil
	})
	return pool, err
}

func (s *BoltStore) LoadAccount(addr common.Address) (*stakepool.AccountState, error) {
	var acct *stakepool.AccountState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get(addr.Bytes())
		if len(data) == 0 {
			return nil
		}
		decoded, err := decodeAccount(data)
		if err != nil {
			return err
		}
		decoded.Address = addr
		acct = decoded
		return nil
	})
	return acct, err
}

func (s *BoltStore) Commit(pool *stakepool.Pool, accounts []*stakepool.AccountState) error {
	encoded, err := encodePool(pool)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPool).Put(poolRecordKey, encoded); err != nil {
			return err
		}
		bucket := tx.Bucket(bucketAccounts)
		for _, acct := range accounts {
			if acct == nil {
				continue
			}
			data, err := encodeAccount(acct)
			if err != nil {
				return err
			}
			if err := bucket.Put(acct.Address.Bytes(), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("poolstore: commit: %w", err)
	}
	return nil
}

// ForEachAccount visits every stored account in key order.
func (s *BoltStore) ForEachAccount(fn func(*stakepool.AccountState) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(key, value []byte) error {
			acct, err := decodeAccount(value)
			if err != nil {
				return err
			}
			acct.Address = common.BytesToAddress(key)
			return fn(acct)
		})
	})
}
