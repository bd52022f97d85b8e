// Package token holds the listing gate: only tokens added by the venue
// owner may be deposited or traded.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexchange/dexchange/pkg/erc20"
)

var (
	ErrNotOwner      = errors.New("only the owner can add tokens into the exchange")
	ErrEmptyAddress  = errors.New("token address is empty")
	ErrAlreadyListed = errors.New("this token is already listed on the exchange")
	ErrNotListed     = errors.New("this token is not listed on the exchange")
)

// Listing is immutable once created. Seq preserves insertion order across
// storage reloads.
type Listing struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
	Seq     int            `json:"seq"`
}

type Registry struct {
	mu     sync.RWMutex
	owner  common.Address
	byAddr map[common.Address]Listing
	order  []common.Address
}

func NewRegistry(owner common.Address) *Registry {
	return &Registry{
		owner:  owner,
		byAddr: make(map[common.Address]Listing),
	}
}

func (r *Registry) Owner() common.Address { return r.owner }

// Add lists a token, reading its name and symbol from the contract binding.
func (r *Registry) Add(caller common.Address, tok erc20.Token) (Listing, error) {
	if caller != r.owner {
		return Listing{}, ErrNotOwner
	}
	addr := tok.Address()
	if addr == (common.Address{}) {
		return Listing{}, ErrEmptyAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddr[addr]; exists {
		return Listing{}, fmt.Errorf("%w: %s", ErrAlreadyListed, addr.Hex())
	}

	l := Listing{
		Address: addr,
		Name:    tok.Name(),
		Symbol:  tok.Symbol(),
		Seq:     len(r.order),
	}
	r.byAddr[addr] = l
	r.order = append(r.order, addr)
	return l, nil
}

// Restore re-registers a persisted listing without the owner gate.
// Listings must arrive in Seq order.
func (r *Registry) Restore(l Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddr[l.Address]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyListed, l.Address.Hex())
	}
	r.byAddr[l.Address] = l
	r.order = append(r.order, l.Address)
	return nil
}

func (r *Registry) IsListed(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAddr[addr]
	return ok
}

func (r *Registry) Get(addr common.Address) (Listing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byAddr[addr]
	return l, ok
}

// Listings returns all listings in insertion order.
func (r *Registry) Listings() []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listing, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.byAddr[addr])
	}
	return out
}
