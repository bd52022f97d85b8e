package erc20

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryToken is an in-memory ERC20 with standard allowance semantics.
// It stands in for the deployed token contracts in tests and the demo
// binary.
type MemoryToken struct {
	mu sync.Mutex

	addr   common.Address
	name   string
	symbol string

	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int // owner -> spender -> amount
}

func NewMemoryToken(addr common.Address, name, symbol string) *MemoryToken {
	return &MemoryToken{
		addr:       addr,
		name:       name,
		symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *MemoryToken) Address() common.Address { return t.addr }
func (t *MemoryToken) Name() string            { return t.name }
func (t *MemoryToken) Symbol() string          { return t.symbol }

func (t *MemoryToken) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits freshly created tokens to owner. Test/demo setup only.
func (t *MemoryToken) Mint(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(owner, amount)
}

// Approve sets the allowance owner grants to spender.
func (t *MemoryToken) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

func (t *MemoryToken) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (t *MemoryToken) TransferFrom(operator, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][operator]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s from %s", ErrInsufficientAllowance, t.symbol, from.Hex())
	}
	if err := t.debit(from, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemoryToken) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// credit and debit assume the lock is held.
func (t *MemoryToken) credit(owner common.Address, amount *big.Int) {
	b, ok := t.balances[owner]
	if !ok {
		b = new(big.Int)
		t.balances[owner] = b
	}
	b.Add(b, amount)
}

func (t *MemoryToken) debit(owner common.Address, amount *big.Int) error {
	b := t.balances[owner]
	if b == nil || b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s from %s", ErrInsufficientFunds, t.symbol, owner.Hex())
	}
	b.Sub(b, amount)
	return nil
}

// MemoryBackend resolves MemoryTokens by address.
type MemoryBackend struct {
	mu     sync.RWMutex
	tokens map[common.Address]*MemoryToken
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tokens: make(map[common.Address]*MemoryToken)}
}

// Deploy creates and registers a new token.
func (b *MemoryBackend) Deploy(addr common.Address, name, symbol string) *MemoryToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := NewMemoryToken(addr, name, symbol)
	b.tokens[addr] = t
	return t
}

func (b *MemoryBackend) Token(addr common.Address) (Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}
