// Package ledger tracks free (post-escrow) balances per user and asset.
// An asset is a listed token address or Ether, the native-currency slot
// that accumulates sell proceeds and buy-order refunds.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Ether is the asset key for native currency.
var Ether = common.Address{}

type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int // user -> asset -> amount
}

func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Balance returns a copy of the user's free balance for the asset.
func (l *Ledger) Balance(user, asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[user][asset]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Credit adds amount to the user's balance.
func (l *Ledger) Credit(user, asset common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(user, asset).Add(l.entry(user, asset), amount)
}

// Debit subtracts amount, failing with ErrInsufficientBalance if the free
// balance is short. The balance is untouched on failure.
func (l *Ledger) Debit(user, asset common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.entry(user, asset)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, b, amount)
	}
	b.Sub(b, amount)
	return nil
}

// Set overwrites a balance. Storage reload only.
func (l *Ledger) Set(user, asset common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(user, asset).Set(amount)
}

// TotalOf sums every user's balance for one asset.
func (l *Ledger) TotalOf(asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := new(big.Int)
	for _, assets := range l.balances {
		if b, ok := assets[asset]; ok {
			total.Add(total, b)
		}
	}
	return total
}

// entry assumes the lock is held.
func (l *Ledger) entry(user, asset common.Address) *big.Int {
	assets, ok := l.balances[user]
	if !ok {
		assets = make(map[common.Address]*big.Int)
		l.balances[user] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = new(big.Int)
		assets[asset] = b
	}
	return b
}
