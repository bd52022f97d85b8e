package exchange

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one notification emitted by a committed write operation. Every
// successful write emits exactly one.
type Event interface {
	EventName() string
}

type TokenAdded struct {
	Token  common.Address
	Name   string
	Symbol string
}

type TokensDeposited struct {
	User   common.Address
	Token  common.Address
	Amount *big.Int
}

type Withdrawn struct {
	User   common.Address
	Token  common.Address
	Amount *big.Int
}

type EthersWithdrawn struct {
	User   common.Address
	Amount *big.Int
}

type SellOrderPlaced struct {
	Token  common.Address
	Price  *big.Int
	Amount *big.Int
}

type BuyOrderPlaced struct {
	Token  common.Address
	Price  *big.Int
	Amount *big.Int
}

type OrderCanceled struct {
	Token   common.Address
	OrderID uint64
}

type TokensPurchased struct {
	Buyer    common.Address
	Token    common.Address
	Spent    *big.Int
	Acquired *big.Int
}

type TokensSold struct {
	Seller   common.Address
	Token    common.Address
	Proceeds *big.Int
	Amount   *big.Int
}

func (TokenAdded) EventName() string      { return "TokenAdded" }
func (TokensDeposited) EventName() string { return "TokensDeposited" }
func (Withdrawn) EventName() string       { return "Withdrawn" }
func (EthersWithdrawn) EventName() string { return "EthersWithdrawn" }
func (SellOrderPlaced) EventName() string { return "SellOrderPlaced" }
func (BuyOrderPlaced) EventName() string  { return "BuyOrderPlaced" }
func (OrderCanceled) EventName() string   { return "OrderCanceled" }
func (TokensPurchased) EventName() string { return "TokensPurchased" }
func (TokensSold) EventName() string      { return "TokensSold" }

// Feed fans events out to in-process subscribers. Slow subscribers drop
// events rather than block the engine.
type Feed struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe registers a new subscriber with the given buffer size.
func (f *Feed) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

func (f *Feed) publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
