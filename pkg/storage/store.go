// Package storage persists the venue's durable state in Pebble: listings,
// balances, resting orders, order-ID counters and trade records. Values are
// JSON; keys are prefixed strings (see keys.go). Multi-key writes of a
// single operation go through a Batch so a sweep commits atomically.
package storage

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dexchange/dexchange/pkg/exchange/book"
	"github.com/dexchange/dexchange/pkg/exchange/token"
)

type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// NewBatch starts an atomic write batch for one venue operation.
func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Commit applies the batch durably.
func (s *Store) Commit(b *Batch) error {
	if err := b.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Batch buffers the writes of one operation.
type Batch struct {
	b *pebble.Batch
}

func (b *Batch) SaveListing(l token.Listing) error {
	val, err := encodeJSON(l)
	if err != nil {
		return err
	}
	return b.b.Set(listingKey(l.Address), val, nil)
}

func (b *Batch) SaveBalance(user, asset common.Address, amount *big.Int) error {
	val, err := encodeJSON(amount)
	if err != nil {
		return err
	}
	return b.b.Set(balanceKey(user, asset), val, nil)
}

func (b *Batch) SaveOrder(tok common.Address, side book.Side, o *book.Order) error {
	val, err := encodeJSON(o)
	if err != nil {
		return err
	}
	return b.b.Set(orderKey(tok, side, o.ID), val, nil)
}

func (b *Batch) DeleteOrder(tok common.Address, side book.Side, id uint64) error {
	return b.b.Delete(orderKey(tok, side, id), nil)
}

func (b *Batch) SaveSeq(tok common.Address, side book.Side, next uint64) error {
	return b.b.Set(seqKey(tok, side), encodeSeq(next), nil)
}

func (b *Batch) AppendTrade(t book.Trade) error {
	val, err := encodeJSON(t)
	if err != nil {
		return err
	}
	return b.b.Set(tradeKey(t), val, nil)
}

// Listings loads all persisted listings in Seq order.
func (s *Store) Listings() ([]token.Listing, error) {
	var out []token.Listing
	err := s.scan(prefixListing, func(_, val []byte) error {
		var l token.Listing
		if err := decodeJSON(val, &l); err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Keys iterate in address order; restore insertion order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Seq < out[j-1].Seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Balances streams every persisted balance.
func (s *Store) Balances(fn func(user, asset common.Address, amount *big.Int) error) error {
	return s.scan(prefixBalance, func(key, val []byte) error {
		user, asset, err := parseBalanceKey(key)
		if err != nil {
			return err
		}
		amount := new(big.Int)
		if err := decodeJSON(val, amount); err != nil {
			return err
		}
		return fn(user, asset, amount)
	})
}

// Orders streams every persisted resting order.
func (s *Store) Orders(fn func(tok common.Address, side book.Side, o *book.Order) error) error {
	return s.scan(prefixOrder, func(key, val []byte) error {
		tok, side, err := parseOrderKey(key)
		if err != nil {
			return err
		}
		var o book.Order
		if err := decodeJSON(val, &o); err != nil {
			return err
		}
		return fn(tok, side, &o)
	})
}

// Seqs streams every persisted order-ID counter.
func (s *Store) Seqs(fn func(tok common.Address, side book.Side, next uint64) error) error {
	return s.scan(prefixSeq, func(key, val []byte) error {
		tok, side, err := parseSeqKey(key)
		if err != nil {
			return err
		}
		return fn(tok, side, decodeSeq(val))
	})
}

// Trades returns the persisted trades for a token, oldest first.
func (s *Store) Trades(tok common.Address) ([]book.Trade, error) {
	var out []book.Trade
	lower, upper := prefixBounds(tradePrefix(tok))
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var t book.Trade
		if err := decodeJSON(it.Value(), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, it.Error()
}

func (s *Store) scan(prefix string, fn func(key, val []byte) error) error {
	lower, upper := prefixBounds([]byte(prefix))
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
