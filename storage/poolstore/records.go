package poolstore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakepool/native/stakepool"
)

var errValueOverflow = errors.New("poolstore: stored value exceeds 256 bits")

type storedPool struct {
	RewardRate           *big.Int
	RewardsDuration      uint64
	PeriodFinish         uint64
	LastUpdateTime       uint64
	RewardPerTokenStored *big.Int
	TotalStaked          *big.Int
	CooldownPeriod       uint64
	Asset                []byte
}

type storedAccount struct {
	Address              []byte
	StakedBalance        *big.Int
	PendingUnstakeAmount *big.Int
	UnstakeRequestedAt   uint64
	RewardPerTokenPaid   *big.Int
	AccruedRewards       *big.Int
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, errValueOverflow
	}
	return out, nil
}

func encodePool(pool *stakepool.Pool) ([]byte, error) {
	if pool == nil {
		return nil, fmt.Errorf("poolstore: nil pool")
	}
	record := storedPool{
		RewardRate:           toBig(pool.Reward.RewardRate),
		RewardsDuration:      pool.Reward.RewardsDuration,
		PeriodFinish:         pool.Reward.PeriodFinish,
		LastUpdateTime:       pool.Reward.LastUpdateTime,
		RewardPerTokenStored: toBig(pool.Reward.RewardPerTokenStored),
		TotalStaked:          toBig(pool.TotalStaked),
		CooldownPeriod:       pool.CooldownPeriod,
		Asset:                pool.Asset.Bytes(),
	}
	return rlp.EncodeToBytes(record)
}

func decodePool(data []byte) (*stakepool.Pool, error) {
	var record storedPool
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, fmt.Errorf("poolstore: decode pool: %w", err)
	}
	pool := &stakepool.Pool{
		CooldownPeriod: record.CooldownPeriod,
		Asset:          common.BytesToAddress(record.Asset),
	}
	pool.Reward.RewardsDuration = record.RewardsDuration
	pool.Reward.PeriodFinish = record.PeriodFinish
	pool.Reward.LastUpdateTime = record.LastUpdateTime
	var err error
	if pool.Reward.RewardRate, err = fromBig(record.RewardRate); err != nil {
		return nil, err
	}
	if pool.Reward.RewardPerTokenStored, err = fromBig(record.RewardPerTokenStored); err != nil {
		return nil, err
	}
	if pool.TotalStaked, err = fromBig(record.TotalStaked); err != nil {
		return nil, err
	}
	return pool, nil
}

func encodeAccount(acct *stakepool.AccountState) ([]byte, error) {
	if acct == nil {
		return nil, fmt.Errorf("poolstore: nil account")
	}
	record := storedAccount{
		Address:              acct.Address.Bytes(),
		StakedBalance:        toBig(acct.StakedBalance),
		PendingUnstakeAmount: toBig(acct.PendingUnstakeAmount),
		UnstakeRequestedAt:   acct.UnstakeRequestedAt,
		RewardPerTokenPaid:   toBig(acct.RewardPerTokenPaid),
		AccruedRewards:       toBig(acct.AccruedRewards),
	}
	return rlp.EncodeToBytes(record)
}

func decodeAccount(data []byte) (*stakepool.AccountState, error) {
	var record storedAccount
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, fmt.Errorf("poolstore: decode account: %w", err)
	}
	acct := &stakepool.AccountState{
		Address:            common.BytesToAddress(record.Address),
		UnstakeRequestedAt: record.UnstakeRequestedAt,
	}
	var err error
	if acct.StakedBalance, err = fromBig(record.StakedBalance); err != nil {
		return nil, err
	}
	if acct.PendingUnstakeAmount, err = fromBig(record.PendingUnstakeAmount); err != nil {
		return nil, err
	}
	if acct.RewardPerTokenPaid, err = fromBig(record.RewardPerTokenPaid); err != nil {
		return nil, err
	}
	if acct.AccruedRewards, err = fromBig(record.AccruedRewards); err != nil {
		return nil, err
	}
	return acct, nil
}
