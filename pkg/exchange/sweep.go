package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/dexchange/dexchange/pkg/exchange/book"
	"github.com/dexchange/dexchange/pkg/exchange/ledger"
)

// Market sweeps are planned read-only first and applied only once the plan
// is known to succeed, so a failed sweep leaves book, ledger and store
// untouched.

type sweepFill struct {
	order *book.Order
	qty   *big.Int
	cost  *big.Int
}

// BuyResult reports a completed market buy.
type BuyResult struct {
	Spent    *big.Int // budget consumed
	Acquired *big.Int // tokens delivered to the buyer's balance
	Refund   *big.Int // sub-unit budget remainder returned to the ether balance
	Trades   []book.Trade
}

// SellResult reports a completed market sell.
type SellResult struct {
	Proceeds *big.Int
	Sold     *big.Int
	Trades   []book.Trade
}

type balanceRef struct {
	user  common.Address
	asset common.Address
}

// BuyTokens spends valueSent against the sell side, cheapest orders first.
// Whole orders are consumed while affordable; at most one order is
// partially consumed by integer division of the remaining budget. If the
// sell side runs out of liquidity before the budget is spent, the whole
// operation fails and commits nothing.
func (x *Exchange) BuyTokens(caller, tokenAddr common.Address, valueSent *big.Int) (BuyResult, error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return BuyResult{}, err
	}
	if valueSent == nil || valueSent.Sign() < 0 {
		return BuyResult{}, ErrNegativeAmount
	}
	if valueSent.Sign() == 0 {
		return BuyResult{}, ErrZeroPurchase
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Plan.
	remaining := new(big.Int).Set(valueSent)
	var fills []sweepFill
	for i := 0; remaining.Sign() > 0; {
		if i >= m.sells.Len() {
			return BuyResult{}, fmt.Errorf("buy tokens: %w", ErrInsufficientLiquidity)
		}
		o := m.sells.At(i)
		full := costOf(o.Price, o.Amount)
		if full.Cmp(remaining) <= 0 {
			fills = append(fills, sweepFill{order: o, qty: new(big.Int).Set(o.Amount), cost: full})
			remaining.Sub(remaining, full)
			i++
			continue
		}
		qty := new(big.Int).Mul(remaining, wad)
		qty.Quo(qty, o.Price)
		if qty.Sign() == 0 {
			break // remainder can not buy one base unit at the best price
		}
		cost := costOf(o.Price, qty)
		fills = append(fills, sweepFill{order: o, qty: qty, cost: cost})
		remaining.Sub(remaining, cost)
		break
	}

	// Apply. Seller proceeds and budget dust land on ether balances, so
	// the snapshots and their commit go under the venue-wide ether lock.
	x.etherMu.Lock()
	defer x.etherMu.Unlock()

	acquired := new(big.Int)
	touched := make(map[balanceRef]struct{})
	b := x.store.NewBatch()
	trades := make([]book.Trade, 0, len(fills))
	now := x.clock.Now().UTC()

	for _, f := range fills {
		o := f.order
		acquired.Add(acquired, f.qty)
		x.ledger.Credit(o.Owner, ledger.Ether, f.cost)
		touched[balanceRef{o.Owner, ledger.Ether}] = struct{}{}

		if f.qty.Cmp(o.Amount) == 0 {
			if _, err := m.sells.Remove(o.ID); err != nil {
				return BuyResult{}, err
			}
			if err := b.DeleteOrder(tokenAddr, book.Sell, o.ID); err != nil {
				return BuyResult{}, err
			}
		} else {
			if err := m.sells.Decrement(o.ID, f.qty); err != nil {
				return BuyResult{}, err
			}
			if err := b.SaveOrder(tokenAddr, book.Sell, o); err != nil {
				return BuyResult{}, err
			}
		}

		trades = append(trades, book.Trade{
			ID:     uuid.NewString(),
			Token:  tokenAddr,
			Maker:  o.Owner,
			Taker:  caller,
			Side:   book.Buy,
			Price:  new(big.Int).Set(o.Price),
			Amount: new(big.Int).Set(f.qty),
			Time:   now,
		})
	}

	x.ledger.Credit(caller, tokenAddr, acquired)
	touched[balanceRef{caller, tokenAddr}] = struct{}{}
	if remaining.Sign() > 0 {
		x.ledger.Credit(caller, ledger.Ether, remaining)
		touched[balanceRef{caller, ledger.Ether}] = struct{}{}
	}

	for ref := range touched {
		if err := b.SaveBalance(ref.user, ref.asset, x.ledger.Balance(ref.user, ref.asset)); err != nil {
			return BuyResult{}, err
		}
	}
	for _, t := range trades {
		if err := b.AppendTrade(t); err != nil {
			return BuyResult{}, err
		}
	}
	if err := x.store.Commit(b); err != nil {
		return BuyResult{}, err
	}

	spent := new(big.Int).Sub(valueSent, remaining)
	x.log.Infow("tokens_purchased",
		"buyer", caller.Hex(), "token", tokenAddr.Hex(),
		"spent", spent.String(), "acquired", acquired.String(), "fills", len(fills))
	x.emit(TokensPurchased{Buyer: caller, Token: tokenAddr, Spent: spent, Acquired: new(big.Int).Set(acquired)})

	return BuyResult{Spent: spent, Acquired: acquired, Refund: remaining, Trades: trades}, nil
}

// SellTokens sells amount tokens into the buy side, highest bids first.
// The last matched order may be partially consumed in place. If aggregate
// buy-side quantity is short of amount, the whole operation fails and
// commits nothing.
func (x *Exchange) SellTokens(caller, tokenAddr common.Address, amount *big.Int) (SellResult, error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return SellResult{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return SellResult{}, ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return SellResult{}, ErrSellZero
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if x.ledger.Balance(caller, tokenAddr).Cmp(amount) < 0 {
		return SellResult{}, ledger.ErrInsufficientBalance
	}

	// Plan.
	remaining := new(big.Int).Set(amount)
	var fills []sweepFill
	for i := 0; remaining.Sign() > 0; i++ {
		if i >= m.buys.Len() {
			return SellResult{}, fmt.Errorf("sell tokens: %w", ErrInsufficientLiquidity)
		}
		o := m.buys.At(i)
		qty := new(big.Int).Set(o.Amount)
		if remaining.Cmp(qty) < 0 {
			qty.Set(remaining)
		}
		fills = append(fills, sweepFill{order: o, qty: qty, cost: costOf(o.Price, qty)})
		remaining.Sub(remaining, qty)
	}

	// Apply.
	x.etherMu.Lock()
	defer x.etherMu.Unlock()

	if err := x.ledger.Debit(caller, tokenAddr, amount); err != nil {
		return SellResult{}, err
	}
	proceeds := new(big.Int)
	touched := map[balanceRef]struct{}{
		{caller, tokenAddr}:    {},
		{caller, ledger.Ether}: {},
	}
	b := x.store.NewBatch()
	trades := make([]book.Trade, 0, len(fills))
	now := x.clock.Now().UTC()

	for _, f := range fills {
		o := f.order
		proceeds.Add(proceeds, f.cost)
		x.ledger.Credit(o.Owner, tokenAddr, f.qty)
		touched[balanceRef{o.Owner, tokenAddr}] = struct{}{}

		if o.Escrow == nil {
			o.Escrow = costOf(o.Price, o.Amount)
		}
		o.Escrow.Sub(o.Escrow, f.cost)

		if f.qty.Cmp(o.Amount) == 0 {
			if _, err := m.buys.Remove(o.ID); err != nil {
				return SellResult{}, err
			}
			// Floored per-fill costs can strand sub-unit escrow on a
			// fully consumed order; return it to the order owner.
			if o.Escrow.Sign() > 0 {
				x.ledger.Credit(o.Owner, ledger.Ether, o.Escrow)
				touched[balanceRef{o.Owner, ledger.Ether}] = struct{}{}
			}
			if err := b.DeleteOrder(tokenAddr, book.Buy, o.ID); err != nil {
				return SellResult{}, err
			}
		} else {
			if err := m.buys.Decrement(o.ID, f.qty); err != nil {
				return SellResult{}, err
			}
			if err := b.SaveOrder(tokenAddr, book.Buy, o); err != nil {
				return SellResult{}, err
			}
		}

		trades = append(trades, book.Trade{
			ID:     uuid.NewString(),
			Token:  tokenAddr,
			Maker:  o.Owner,
			Taker:  caller,
			Side:   book.Sell,
			Price:  new(big.Int).Set(o.Price),
			Amount: new(big.Int).Set(f.qty),
			Time:   now,
		})
	}

	x.ledger.Credit(caller, ledger.Ether, proceeds)

	for ref := range touched {
		if err := b.SaveBalance(ref.user, ref.asset, x.ledger.Balance(ref.user, ref.asset)); err != nil {
			return SellResult{}, err
		}
	}
	for _, t := range trades {
		if err := b.AppendTrade(t); err != nil {
			return SellResult{}, err
		}
	}
	if err := x.store.Commit(b); err != nil {
		return SellResult{}, err
	}

	x.log.Infow("tokens_sold",
		"seller", caller.Hex(), "token", tokenAddr.Hex(),
		"proceeds", proceeds.String(), "amount", amount.String(), "fills", len(fills))
	x.emit(TokensSold{Seller: caller, Token: tokenAddr, Proceeds: new(big.Int).Set(proceeds), Amount: new(big.Int).Set(amount)})

	return SellResult{Proceeds: proceeds, Sold: new(big.Int).Set(amount), Trades: trades}, nil
}
