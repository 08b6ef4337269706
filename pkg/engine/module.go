// Package engine implements the scheduled payment module: the avatar
// schedules payment hashes and the crank executes them inside an
// all-or-nothing unit of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/events"
	"github.com/cardstack/scheduled-payment-crank/pkg/ledger"
	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
)

// Options wires a module to its collaborators
type Options struct {
	Owner  common.Address
	Target common.Address

	ConfigAddress common.Address
	Config        ConfigSource
	Rates         RateSource
	Tokens        TokenInfo
	Avatar        Avatar

	// Store defaults to an in-memory ledger store
	Store  ledger.Store
	Sink   events.Sink
	Logger logger.Logger
}

// Module is one scheduled payment module instance bound to an avatar.
// Every operation holds the module lock until it completes.
type Module struct {
	mu sync.Mutex

	owner         common.Address
	target        common.Address
	configAddress common.Address

	config ConfigSource
	rates  RateSource
	tokens TokenInfo
	avatar Avatar

	ledger *ledger.Ledger
	sink   events.Sink
	logger logger.Logger

	lastNow uint64
}

// New validates the wiring, loads the ledger and emits ScheduledPaymentSetup
func New(ctx context.Context, opts Options) (*Module, error) {
	if opts.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner is the zero address", ErrInvalidSetup)
	}
	if opts.Avatar == nil || opts.Avatar.Address() == (common.Address{}) {
		return nil, fmt.Errorf("%w: avatar can not be zero address", ErrInvalidSetup)
	}
	if opts.Target == (common.Address{}) {
		return nil, fmt.Errorf("%w: target can not be zero address", ErrInvalidSetup)
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config source is required", ErrInvalidSetup)
	}
	if opts.Rates == nil {
		return nil, fmt.Errorf("%w: rate source is required", ErrInvalidSetup)
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("%w: token info is required", ErrInvalidSetup)
	}

	store := opts.Store
	if store == nil {
		store = ledger.NewMemoryStore()
	}
	log := opts.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	l, err := ledger.New(ctx, opts.Avatar.Address(), store, opts.Sink)
	if err != nil {
		return nil, err
	}

	m := &Module{
		owner:         opts.Owner,
		target:        opts.Target,
		configAddress: opts.ConfigAddress,
		config:        opts.Config,
		rates:         opts.Rates,
		tokens:        opts.Tokens,
		avatar:        opts.Avatar,
		ledger:        l,
		sink:          opts.Sink,
		logger:        log,
	}

	m.emit(events.Event{
		Kind: events.ScheduledPaymentSetup,
		Setup: &events.Setup{
			Owner:  m.owner,
			Avatar: opts.Avatar.Address(),
			Target: m.target,
			Config: m.configAddress,
		},
	})
	log.Info("Scheduled payment module ready: avatar=%s, active payments=%d", opts.Avatar.Address().Hex(), l.Len())
	return m, nil
}

// Owner returns the address allowed to change the config
func (m *Module) Owner() common.Address {
	return m.owner
}

// Target returns the module target
func (m *Module) Target() common.Address {
	return m.target
}

// AvatarAddress returns the avatar the module pays from
func (m *Module) AvatarAddress() common.Address {
	return m.avatar.Address()
}

// ConfigAddress returns the address of the active config
func (m *Module) ConfigAddress() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configAddress
}

// ValidForDays reads the grace period from the active config
func (m *Module) ValidForDays(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	source := m.config
	m.mu.Unlock()
	return source.ValidForDays(ctx)
}

// CrankAddress reads the crank allowed to execute payments
func (m *Module) CrankAddress(ctx context.Context) (common.Address, error) {
	m.mu.Lock()
	source := m.config
	m.mu.Unlock()
	return source.CrankAddress(ctx)
}

// SetConfig replaces the config collaborator. Only the owner may call it.
func (m *Module) SetConfig(ctx context.Context, caller, address common.Address, source ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.owner {
		return wrap("setConfig", common.Hash{}, fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex()))
	}
	if source == nil {
		return wrap("setConfig", common.Hash{}, errors.New("config source is required"))
	}

	m.configAddress = address
	m.config = source
	m.emit(events.Event{Kind: events.ConfigSet, Address: address})
	m.logger.Notice("Config set to %s", address.Hex())
	return nil
}

// SchedulePayment registers hash. Only the avatar may call it.
func (m *Module) SchedulePayment(ctx context.Context, caller common.Address, hash common.Hash) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce, err := m.ledger.Schedule(ctx, caller, hash)
	if err != nil {
		return 0, wrap("schedulePayment", hash, err)
	}
	m.logger.DebugWithPayment(hash, "Scheduled with nonce %d", nonce)
	return nonce, nil
}

// CancelScheduledPayment removes hash. Only the avatar may call it.
func (m *Module) CancelScheduledPayment(ctx context.Context, caller common.Address, hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Cancel(ctx, caller, hash); err != nil {
		return wrap("cancelScheduledPayment", hash, err)
	}
	m.logger.DebugWithPayment(hash, "Cancelled")
	return nil
}

// ExecTransaction applies several avatar operations as one unit, the way
// a multisig transaction batches module calls.
func (m *Module) ExecTransaction(ctx context.Context, caller common.Address, ops []ledger.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ledger.Batch(ctx, caller, ops); err != nil {
		var hash common.Hash
		if len(ops) == 1 {
			hash = ops[0].Hash
		}
		return wrap("execTransaction", hash, err)
	}
	return nil
}

// IsActive reports whether hash is scheduled
func (m *Module) IsActive(hash common.Hash) bool {
	return m.ledger.IsActive(hash)
}

// ActivePayments returns the scheduled hashes in insertion order
func (m *Module) ActivePayments() []common.Hash {
	return m.ledger.ListActive()
}

// Ledger exposes read access to the payment ledger
func (m *Module) Ledger() *ledger.Ledger {
	return m.ledger
}

func (m *Module) emit(e events.Event) {
	if m.sink != nil {
		m.sink.Emit(e)
	}
}
