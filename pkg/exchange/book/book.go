package book

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoSuchOrder = errors.New("there is no such order")

// Book is the ranked index for one (token, side) pair. Sell side ranks
// ascending by price, buy side descending; equal prices rank by insertion
// order. Index 0 is always the best order. Not safe for concurrent use;
// the exchange serializes access per token.
type Book struct {
	side   Side
	orders []*Order
	nextID uint64
}

func New(side Side) *Book {
	return &Book{side: side, nextID: 1}
}

func (b *Book) Side() Side { return b.side }
func (b *Book) Len() int   { return len(b.orders) }

// TakeID returns the next order ID and advances the counter. IDs are never
// reused, even after cancellation.
func (b *Book) TakeID() uint64 {
	id := b.nextID
	b.nextID++
	return id
}

// NextID reports the counter without advancing it (persisted across restarts).
func (b *Book) NextID() uint64 { return b.nextID }

// SetNextID restores the counter when rebuilding from storage.
func (b *Book) SetNextID(n uint64) {
	if n > b.nextID {
		b.nextID = n
	}
}

// ranksAfter reports whether x ranks strictly after o. IDs are monotonic
// per side, so comparing IDs on equal prices yields insertion order even
// when orders are re-inserted out of sequence during a storage reload.
func (b *Book) ranksAfter(x, o *Order) bool {
	c := x.Price.Cmp(o.Price)
	if c == 0 {
		return x.ID > o.ID
	}
	if b.side == Sell {
		return c > 0 // cheapest first
	}
	return c < 0 // highest bid first
}

// Insert places o at its ranked position.
func (b *Book) Insert(o *Order) {
	i := sort.Search(len(b.orders), func(i int) bool {
		return b.ranksAfter(b.orders[i], o)
	})
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
}

// Get returns the live order with the given ID.
func (b *Book) Get(id uint64) (*Order, error) {
	for _, o := range b.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNoSuchOrder
}

// Remove unlinks the order with the given ID and returns it.
func (b *Book) Remove(id uint64) (*Order, error) {
	for i, o := range b.orders {
		if o.ID == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return o, nil
		}
	}
	return nil, ErrNoSuchOrder
}

// Best returns the highest-ranked live order, or nil when the side is empty.
func (b *Book) Best() *Order {
	if len(b.orders) == 0 {
		return nil
	}
	return b.orders[0]
}

// At returns the order at rank i. Callers must not mutate it directly;
// use Decrement so a zeroed order is unlinked.
func (b *Book) At(i int) *Order { return b.orders[i] }

// Decrement reduces the order's remaining amount by `by` and removes the
// order once it reaches zero. The price is unchanged, so the rank is
// unaffected.
func (b *Book) Decrement(id uint64, by *big.Int) error {
	for i, o := range b.orders {
		if o.ID != id {
			continue
		}
		if o.Amount.Cmp(by) < 0 {
			return errors.New("decrement exceeds remaining amount")
		}
		o.Amount.Sub(o.Amount, by)
		if o.Amount.Sign() == 0 {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
		}
		return nil
	}
	return ErrNoSuchOrder
}

// TopN returns exactly n slots in rank order. Slots beyond the number of
// live orders hold the empty sentinel (id 0, price 0, amount 0), so callers
// always receive a fixed-length ranked array.
func (b *Book) TopN(n int) []Order {
	top := make([]Order, n)
	for i := 0; i < n; i++ {
		if i < len(b.orders) {
			top[i] = b.orders[i].clone()
			continue
		}
		top[i] = Order{Price: new(big.Int), Amount: new(big.Int)}
	}
	return top
}

// OrdersOf returns copies of the owner's live orders in rank order.
func (b *Book) OrdersOf(owner common.Address) []Order {
	var out []Order
	for _, o := range b.orders {
		if o.Owner == owner {
			out = append(out, o.clone())
		}
	}
	return out
}
