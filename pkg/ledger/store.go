package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/period"
)

// State is the durable content of a ledger
type State struct {
	// Active holds the live hashes in insertion order
	Active []common.Hash
	// Markers holds the last executed occurrence per hash
	Markers map[common.Hash]period.Marker
	// Nonces maps each legacy nonce (the index) to the hash scheduled with it
	Nonces []common.Hash
}

// ChangeKind names a ledger transition
type ChangeKind int

const (
	ChangeScheduled ChangeKind = iota + 1
	ChangeCancelled
	ChangeSettled
)

// Change is one persisted ledger transition
type Change struct {
	Kind   ChangeKind
	Hash   common.Hash
	Nonce  uint64        // ChangeScheduled
	Marker period.Marker // ChangeSettled
	Remove bool          // ChangeSettled
}

// Store persists ledger transitions. Apply must write all changes or none.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Apply(ctx context.Context, changes []Change) error
}

// MemoryStore is a Store that keeps everything in process memory
type MemoryStore struct {
	mu    sync.Mutex
	state State

	// FailWith, when set, is returned by the next Apply and then cleared
	FailWith error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: State{Markers: make(map[common.Hash]period.Marker)}}
}

func (m *MemoryStore) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(&m.state), nil
}

func (m *MemoryStore) Apply(_ context.Context, changes []Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailWith; err != nil {
		m.FailWith = nil
		return err
	}

	next := cloneState(&m.state)
	for _, c := range changes {
		ApplyChange(next, c)
	}
	m.state = *next
	return nil
}

// ApplyChange folds a change into state
func ApplyChange(st *State, c Change) {
	switch c.Kind {
	case ChangeScheduled:
		st.Active = append(st.Active, c.Hash)
		for uint64(len(st.Nonces)) <= c.Nonce {
			st.Nonces = append(st.Nonces, common.Hash{})
		}
		st.Nonces[c.Nonce] = c.Hash
	case ChangeCancelled:
		st.Active = removeHash(st.Active, c.Hash)
	case ChangeSettled:
		st.Markers[c.Hash] = c.Marker
		if c.Remove {
			st.Active = removeHash(st.Active, c.Hash)
		}
	}
}

func cloneState(s *State) *State {
	st := &State{
		Active:  append([]common.Hash(nil), s.Active...),
		Markers: make(map[common.Hash]period.Marker, len(s.Markers)),
		Nonces:  append([]common.Hash(nil), s.Nonces...),
	}
	for h, marker := range s.Markers {
		st.Markers[h] = marker
	}
	return st
}

func removeHash(hashes []common.Hash, hash common.Hash) []common.Hash {
	out := make([]common.Hash, 0, len(hashes))
	for _, h := range hashes {
		if h != hash {
			out = append(out, h)
		}
	}
	return out
}
