// Package book implements one side of a token's order book: a ranked
// index of resting orders with price-time priority.
package book

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side a market order sweeps against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting order. Price is quoted in native smallest units per
// whole token (1e18 base units); Amount is the remaining tradable quantity
// in token base units. Escrow is the remaining native escrow backing a buy
// order and is nil on the sell side (sell orders escrow Amount itself).
//
// ID is non-zero and assigned monotonically per (token, side); the zero ID
// marks the empty sentinel returned by TopN.
type Order struct {
	ID     uint64         `json:"id"`
	Owner  common.Address `json:"owner"`
	Price  *big.Int       `json:"price"`
	Amount *big.Int       `json:"amount"`
	Escrow *big.Int       `json:"escrow,omitempty"`
}

// clone deep-copies the order so callers cannot reach the book's live state.
func (o *Order) clone() Order {
	c := Order{
		ID:     o.ID,
		Owner:  o.Owner,
		Price:  new(big.Int).Set(o.Price),
		Amount: new(big.Int).Set(o.Amount),
	}
	if o.Escrow != nil {
		c.Escrow = new(big.Int).Set(o.Escrow)
	}
	return c
}

// Trade records one maker matched during a market sweep.
type Trade struct {
	ID     string         `json:"id"`
	Token  common.Address `json:"token"`
	Maker  common.Address `json:"maker"`
	Taker  common.Address `json:"taker"`
	Side   Side           `json:"side"` // taker side
	Price  *big.Int       `json:"price"`
	Amount *big.Int       `json:"amount"`
	Time   time.Time      `json:"time"`
}
