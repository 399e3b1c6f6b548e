package stakepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/core/events"
	nativecommon "stakepool/native/common"
)

var errNilState = errors.New("stakepool engine: state not configured")

// Store persists the pool record and account entries. Commit must apply the
// pool and every supplied account atomically.
type Store interface {
	// LoadPool returns nil without error when the pool was never written.
	LoadPool() (*Pool, error)
	// LoadAccount returns nil without error for accounts never written.
	LoadAccount(addr common.Address) (*AccountState, error)
	Commit(pool *Pool, accounts []*AccountState) error
}

// Transferer moves the pool asset between participants and the pool's
// custody. Implementations receive a context marked as inside a ledger call
// and any ledger operation invoked with it is rejected. Queries must not be
// issued from inside a transfer; the engine lock is held for its duration.
type Transferer interface {
	TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error
	TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
}

// Engine implements the stake ledger, the cooldown scheduler, reward
// accrual and reward period funding on top of a Store.
type Engine struct {
	mu      sync.RWMutex
	state   Store
	bank    Transferer
	emitter events.Emitter
	clock   Clock
	owner   common.Address
	params  Params
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// NewEngine constructs an engine owned by owner. Params seed the pool record
// on first use.
func NewEngine(owner common.Address, params Params) *Engine {
	return &Engine{
		owner:   owner,
		params:  params,
		emitter: events.NoopEmitter{},
		clock:   SystemClock(),
		logger:  slog.Default(),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state Store) { e.state = state }

// SetTransferer wires the value-transfer collaborator.
func (e *Engine) SetTransferer(bank Transferer) { e.bank = bank }

// SetEmitter configures where committed events are published.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source.
func (e *Engine) SetClock(clock Clock) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger overrides the logger used for failures that cannot be returned.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Owner returns the address allowed to call privileged operations.
func (e *Engine) Owner() common.Address {
	if e == nil {
		return common.Address{}
	}
	return e.owner
}

func (e *Engine) now() uint64 {
	return unixSeconds(e.clock.Now())
}

func (e *Engine) requireOwner(caller common.Address) error {
	if e == nil {
		return errNilState
	}
	if e.owner == (common.Address{}) || caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

// txn stages every mutation of one operation on cloned records. Nothing is
// visible to the store until commit.
type txn struct {
	now        uint64
	pool       *Pool
	poolBefore *Pool
	accounts   map[common.Address]*AccountState
	before     map[common.Address]*AccountState
	order      []common.Address
}

func (e *Engine) loadPool() (*Pool, error) {
	pool, err := e.state.LoadPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		if err := e.params.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return e.params.genesis(), nil
	}
	pool = pool.Clone()
	pool.normalize()
	return pool, nil
}

func (e *Engine) loadAccount(addr common.Address) (*AccountState, error) {
	acct, err := e.state.LoadAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return NewAccountState(addr), nil
	}
	acct = acct.Clone()
	acct.Address = addr
	acct.normalize()
	return acct, nil
}

func (e *Engine) begin() (*txn, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return &txn{
		now:        e.now(),
		pool:       pool,
		poolBefore: pool.Clone(),
		accounts:   make(map[common.Address]*AccountState),
		before:     make(map[common.Address]*AccountState),
	}, nil
}

func (tx *txn) account(e *Engine, addr common.Address) (*AccountState, error) {
	if acct, ok := tx.accounts[addr]; ok {
		return acct, nil
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	tx.accounts[addr] = acct
	tx.before[addr] = acct.Clone()
	tx.order = append(tx.order, addr)
	return acct, nil
}

func (tx *txn) staged() []*AccountState {
	out := make([]*AccountState, 0, len(tx.order))
	for _, addr := range tx.order {
		out = append(out, tx.accounts[addr])
	}
	return out
}

func (tx *txn) preimages() []*AccountState {
	out := make([]*AccountState, 0, len(tx.order))
	for _, addr := range tx.order {
		out = append(out, tx.before[addr])
	}
	return out
}

// effect is what an operation asks the engine to do once its staged state
// is committed.
type effect struct {
	transfer func(ctx context.Context) error
	event    events.Event
}

// execute runs op under the engine lock: it stages mutations, commits them
// atomically, performs the transfer and rolls the commit back when the
// transfer fails. Events are only emitted for fully applied operations.
func (e *Engine) execute(ctx context.Context, op string, fn func(tx *txn) (*effect, error)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if nativecommon.InCall(ctx, moduleName) {
		return ErrReentrantCall
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return ErrPaused
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.begin()
	if err != nil {
		return err
	}
	eff, err := fn(tx)
	if err != nil {
		return err
	}
	if err := e.state.Commit(tx.pool, tx.staged()); err != nil {
		return err
	}
	if eff != nil && eff.transfer != nil {
		if e.bank == nil {
			return errors.Join(transferError(op, errors.New("transferer not configured")), e.rollback(op, tx))
		}
		if err := eff.transfer(nativecommon.EnterCall(ctx, moduleName)); err != nil {
			return errors.Join(transferError(op, err), e.rollback(op, tx))
		}
	}
	if eff != nil && eff.event != nil {
		e.emitter.Emit(eff.event)
	}
	return nil
}

// rollback restores the pre-operation records. A failure leaves the staged
// state committed without its transfer and is returned to the caller.
func (e *Engine) rollback(op string, tx *txn) error {
	if err := e.state.Commit(tx.poolBefore, tx.preimages()); err != nil {
		e.logger.Error("stakepool: rollback after failed transfer",
			slog.String("operation", op),
			slog.Any("error", err))
		return fmt.Errorf("stakepool: %s: rollback failed: %w", op, err)
	}
	return nil
}

// view runs a read-only function against the committed state.
func (e *Engine) view(fn func(pool *Pool, now uint64) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	return fn(pool, e.now())
}
