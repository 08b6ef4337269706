// Package ledger holds the set of live payment hashes and their recurrence markers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/events"
	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

var (
	ErrUnauthorized     = errors.New("unauthorized caller")
	ErrAlreadyScheduled = errors.New("payment already scheduled")
	ErrUnknownHash      = errors.New("unknown payment hash")
)

// OpKind selects an avatar operation
type OpKind int

const (
	OpSchedule OpKind = iota + 1
	OpCancel
)

// Op is one schedule or cancel call made by the avatar
type Op struct {
	Kind OpKind
	Hash common.Hash
}

// Ledger tracks live hashes in insertion order.
// Only the avatar may schedule or cancel.
type Ledger struct {
	mu     sync.RWMutex
	avatar common.Address
	store  Store
	sink   events.Sink
	state  *State
	index  map[common.Hash]struct{}
}

// New loads a ledger from store. sink may be nil.
func New(ctx context.Context, avatar common.Address, store Store, sink events.Sink) (*Ledger, error) {
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}
	if state.Markers == nil {
		state.Markers = make(map[common.Hash]period.Marker)
	}

	l := &Ledger{
		avatar: avatar,
		store:  store,
		sink:   sink,
		state:  cloneState(state),
	}
	l.reindex()
	return l, nil
}

// Avatar returns the address allowed to schedule and cancel
func (l *Ledger) Avatar() common.Address {
	return l.avatar
}

// Schedule adds hash to the active set and returns its legacy nonce
func (l *Ledger) Schedule(ctx context.Context, caller common.Address, hash common.Hash) (uint64, error) {
	changes, err := l.Batch(ctx, caller, []Op{{Kind: OpSchedule, Hash: hash}})
	if err != nil {
		return 0, err
	}
	return changes[0].Nonce, nil
}

// Cancel removes hash from the active set
func (l *Ledger) Cancel(ctx context.Context, caller common.Address, hash common.Hash) error {
	_, err := l.Batch(ctx, caller, []Op{{Kind: OpCancel, Hash: hash}})
	return err
}

// Batch applies several avatar operations as one unit.
// If any operation fails nothing is persisted and no event is emitted.
func (l *Ledger) Batch(ctx context.Context, caller common.Address, ops []Op) ([]Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.avatar {
		return nil, fmt.Errorf("%w: %s is not the avatar", ErrUnauthorized, caller.Hex())
	}

	staged := cloneState(l.state)
	live := make(map[common.Hash]struct{}, len(l.index))
	for h := range l.index {
		live[h] = struct{}{}
	}

	var pending events.Buffer
	changes := make([]Change, 0, len(ops))
	for i, op := range ops {
		var c Change
		switch op.Kind {
		case OpSchedule:
			if _, ok := live[op.Hash]; ok {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyScheduled, op.Hash.Hex())
			}
			c = Change{Kind: ChangeScheduled, Hash: op.Hash, Nonce: uint64(len(staged.Nonces))}
			live[op.Hash] = struct{}{}
			pending.Add(events.Event{Kind: events.PaymentScheduled, Hash: c.Hash, Nonce: c.Nonce})
		case OpCancel:
			if _, ok := live[op.Hash]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownHash, op.Hash.Hex())
			}
			c = Change{Kind: ChangeCancelled, Hash: op.Hash}
			delete(live, op.Hash)
			pending.Add(events.Event{Kind: events.ScheduledPaymentCancelled, Hash: c.Hash})
		default:
			return nil, fmt.Errorf("unknown operation %d at position %d", op.Kind, i)
		}
		ApplyChange(staged, c)
		changes = append(changes, c)
	}

	if err := l.store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to persist ledger changes: %w", err)
	}
	l.state = staged
	l.reindex()

	pending.Flush(l.sink)
	return changes, nil
}

// Settle records an executed occurrence. A final settlement retires the hash.
// Markers outlive the active entry so a rescheduled hash cannot pay the same month twice.
func (l *Ledger) Settle(ctx context.Context, hash common.Hash, marker period.Marker, final bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[hash]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHash, hash.Hex())
	}

	c := Change{Kind: ChangeSettled, Hash: hash, Marker: marker, Remove: final}
	if err := l.store.Apply(ctx, []Change{c}); err != nil {
		return fmt.Errorf("failed to persist settlement: %w", err)
	}
	ApplyChange(l.state, c)
	l.reindex()
	return nil
}

// IsActive reports whether hash is live
func (l *Ledger) IsActive(hash common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[hash]
	return ok
}

// ListActive returns the live hashes in insertion order
func (l *Ledger) ListActive() []common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]common.Hash(nil), l.state.Active...)
}

// Len returns the number of live hashes
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.state.Active)
}

// Marker returns the last executed occurrence of hash, zero if none
func (l *Ledger) Marker(hash common.Hash) period.Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Markers[hash]
}

// Nonce returns the next legacy nonce
func (l *Ledger) Nonce() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.state.Nonces))
}

// HashAtNonce returns the hash scheduled with the given legacy nonce
func (l *Ledger) HashAtNonce(nonce uint64) (common.Hash, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if nonce >= uint64(len(l.state.Nonces)) {
		return common.Hash{}, false
	}
	return l.state.Nonces[nonce], true
}

func (l *Ledger) reindex() {
	l.index = make(map[common.Hash]struct{}, len(l.state.Active))
	for _, h := range l.state.Active {
		l.index[h] = struct{}{}
	}
}
