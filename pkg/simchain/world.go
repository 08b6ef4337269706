// Package simchain is an in-memory token world that plays the avatar,
// config, exchange and token collaborators of the payment module.
package simchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/contracts"
)

var (
	ErrUnknownToken        = errors.New("unknown token")
	ErrInsufficientBalance = errors.New("transfer amount exceeds balance")
	ErrInjectedFailure     = errors.New("injected failure")
)

// Token describes a simulated ERC20
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

type journalEntry struct {
	token   common.Address
	account common.Address
	prev    *big.Int
}

// World holds token balances. Balance changes are journaled so they can be
// rolled back to a snapshot.
type World struct {
	mu       sync.Mutex
	tokens   map[common.Address]Token
	balances map[common.Address]map[common.Address]*big.Int
	journal  []journalEntry
	failures map[common.Address]error
}

// NewWorld creates an empty world
func NewWorld() *World {
	return &World{
		tokens:   make(map[common.Address]Token),
		balances: make(map[common.Address]map[common.Address]*big.Int),
		failures: make(map[common.Address]error),
	}
}

// AddToken registers a token
func (w *World) AddToken(t Token) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[t.Address] = t
	if _, ok := w.balances[t.Address]; !ok {
		w.balances[t.Address] = make(map[common.Address]*big.Int)
	}
}

// Tokens returns the registered tokens
func (w *World) Tokens() []Token {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Token, 0, len(w.tokens))
	for _, t := range w.tokens {
		out = append(out, t)
	}
	return out
}

// Mint credits amount to account without journaling
func (w *World) Mint(token, account common.Address, amount *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	book, ok := w.balances[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	book[account] = new(big.Int).Add(w.balance(token, account), amount)
	return nil
}

// FailTransfers makes every transfer of token fail with err until cleared with a nil err
func (w *World) FailTransfers(token common.Address, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.failures, token)
		return
	}
	w.failures[token] = err
}

// Balance returns the balance of account, zero if unknown
func (w *World) Balance(token, account common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.balance(token, account))
}

// BalanceOf implements the module's token info
func (w *World) BalanceOf(_ context.Context, token, account common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tokens[token]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return new(big.Int).Set(w.balance(token, account)), nil
}

// Decimals implements the module's token info
func (w *World) Decimals(_ context.Context, token common.Address) (uint8, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return t.Decimals, nil
}

// Transfer moves amount of token between accounts
func (w *World) Transfer(token, from, to common.Address, amount *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	if err := w.failures[token]; err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	fromBalance := w.balance(token, from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}

	w.set(token, from, new(big.Int).Sub(fromBalance, amount))
	w.set(token, to, new(big.Int).Add(w.balance(token, to), amount))
	return nil
}

// Snapshot returns an identifier of the current state
func (w *World) Snapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.journal)
}

// RevertToSnapshot undoes every journaled change made after id
func (w *World) RevertToSnapshot(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.journal) - 1; i >= id; i-- {
		e := w.journal[i]
		w.balances[e.token][e.account] = e.prev
	}
	if id < len(w.journal) {
		w.journal = w.journal[:id]
	}
}

func (w *World) balance(token, account common.Address) *big.Int {
	if b, ok := w.balances[token][account]; ok {
		return b
	}
	return new(big.Int)
}

func (w *World) set(token, account common.Address, value *big.Int) {
	w.journal = append(w.journal, journalEntry{token: token, account: account, prev: w.balance(token, account)})
	w.balances[token][account] = value
}

// Avatar executes token transfer calldata on behalf of an account
type Avatar struct {
	world   *World
	address common.Address
}

// NewAvatar binds an avatar account to world
func NewAvatar(world *World, address common.Address) *Avatar {
	return &Avatar{world: world, address: address}
}

func (a *Avatar) Address() common.Address {
	return a.address
}

// Execute runs an ERC20 transfer call. Any other call is rejected.
func (a *Avatar) Execute(_ context.Context, to common.Address, value *big.Int, data []byte) error {
	if value != nil && value.Sign() != 0 {
		return errors.New("avatar does not send native value")
	}
	recipient, amount, err := contracts.UnpackTransfer(data)
	if err != nil {
		return fmt.Errorf("unsupported call to %s: %w", to.Hex(), err)
	}
	return a.world.Transfer(to, a.address, recipient, amount)
}

func (a *Avatar) Snapshot() int {
	return a.world.Snapshot()
}

func (a *Avatar) RevertToSnapshot(id int) {
	a.world.RevertToSnapshot(id)
}
