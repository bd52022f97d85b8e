// Package exchange is the venue aggregate: the token registry, the balance
// ledger and one pair of order-book sides per listed token, behind a set of
// operations that each execute atomically. Matching happens only through
// the market sweeps in sweep.go; resting buy and sell orders are never
// auto-matched at placement.
package exchange

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexchange/dexchange/pkg/erc20"
	"github.com/dexchange/dexchange/pkg/exchange/book"
	"github.com/dexchange/dexchange/pkg/exchange/ledger"
	"github.com/dexchange/dexchange/pkg/exchange/token"
	"github.com/dexchange/dexchange/pkg/storage"
	"github.com/dexchange/dexchange/pkg/util"
)

// wad scales prices: a price is native smallest units per whole token
// (1e18 base units), so cost = price × amount / wad.
var wad = big.NewInt(1_000_000_000_000_000_000)

// DefaultDepth is the top-order depth served when a caller asks for n <= 0.
const DefaultDepth = 10

type Options struct {
	Owner   common.Address // may call AddToken
	Venue   common.Address // custody address for ERC20 transfers
	Backend erc20.Backend
	Store   *storage.Store
	Logger  *zap.SugaredLogger
	Clock   util.Clock
	Depth   int
}

// market is one token's pair of book sides. mu serializes every operation
// that touches this token's books or ledger entries; operations on
// different tokens run in parallel.
type market struct {
	mu    sync.Mutex
	buys  *book.Book
	sells *book.Book
}

type Exchange struct {
	addr     common.Address
	backend  erc20.Backend
	registry *token.Registry
	ledger   *ledger.Ledger
	store    *storage.Store
	log      *zap.SugaredLogger
	clock    util.Clock
	feed     *Feed
	depth    int

	// etherMu serializes every ether-balance mutation together with the
	// commit of its persisted snapshot. Ether balances are shared across
	// markets, so without it two operations on different tokens could
	// commit snapshots of the same balance out of mutation order and the
	// stale one would win on reload. Always acquired after the market
	// mutex, never before.
	etherMu sync.Mutex

	mu      sync.RWMutex
	markets map[common.Address]*market
}

// New builds an exchange, rebuilding registry, ledger and books from the
// store if it holds prior state.
func New(opts Options) (*Exchange, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("exchange: backend is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("exchange: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}

	x := &Exchange{
		addr:     opts.Venue,
		backend:  opts.Backend,
		registry: token.NewRegistry(opts.Owner),
		ledger:   ledger.New(),
		store:    opts.Store,
		log:      opts.Logger,
		clock:    opts.Clock,
		feed:     NewFeed(),
		depth:    opts.Depth,
		markets:  make(map[common.Address]*market),
	}
	if err := x.reload(); err != nil {
		return nil, fmt.Errorf("exchange: reload: %w", err)
	}
	return x, nil
}

func (x *Exchange) reload() error {
	listings, err := x.store.Listings()
	if err != nil {
		return err
	}
	for _, l := range listings {
		if err := x.registry.Restore(l); err != nil {
			return err
		}
		x.ensureMarket(l.Address)
	}

	err = x.store.Seqs(func(tok common.Address, side book.Side, next uint64) error {
		x.ensureMarket(tok).bookFor(side).SetNextID(next)
		return nil
	})
	if err != nil {
		return err
	}

	err = x.store.Orders(func(tok common.Address, side book.Side, o *book.Order) error {
		x.ensureMarket(tok).bookFor(side).Insert(o)
		return nil
	})
	if err != nil {
		return err
	}

	return x.store.Balances(func(user, asset common.Address, amount *big.Int) error {
		x.ledger.Set(user, asset, amount)
		return nil
	})
}

func (m *market) bookFor(side book.Side) *book.Book {
	if side == book.Buy {
		return m.buys
	}
	return m.sells
}

func (x *Exchange) ensureMarket(tok common.Address) *market {
	x.mu.Lock()
	defer x.mu.Unlock()
	m, ok := x.markets[tok]
	if !ok {
		m = &market{buys: book.New(book.Buy), sells: book.New(book.Sell)}
		x.markets[tok] = m
	}
	return m
}

// listedMarket gates every per-token operation on the registry.
func (x *Exchange) listedMarket(tok common.Address) (*market, error) {
	if !x.registry.IsListed(tok) {
		return nil, fmt.Errorf("%w: %s", token.ErrNotListed, tok.Hex())
	}
	x.mu.RLock()
	m := x.markets[tok]
	x.mu.RUnlock()
	if m == nil {
		return x.ensureMarket(tok), nil
	}
	return m, nil
}

// Events exposes the notification feed.
func (x *Exchange) Events() *Feed { return x.feed }

func (x *Exchange) emit(ev Event) { x.feed.publish(ev) }

// AddToken lists a token for trading. Owner only; the listing is immutable
// and never removed.
func (x *Exchange) AddToken(caller, tokenAddr common.Address) (token.Listing, error) {
	if tokenAddr == (common.Address{}) {
		return token.Listing{}, token.ErrEmptyAddress
	}
	tok, err := x.backend.Token(tokenAddr)
	if err != nil {
		return token.Listing{}, fmt.Errorf("add token: %w", err)
	}
	l, err := x.registry.Add(caller, tok)
	if err != nil {
		return token.Listing{}, err
	}
	x.ensureMarket(tokenAddr)

	b := x.store.NewBatch()
	if err := b.SaveListing(l); err != nil {
		return token.Listing{}, err
	}
	if err := x.store.Commit(b); err != nil {
		return token.Listing{}, err
	}

	x.log.Infow("token_added", "token", tokenAddr.Hex(), "name", l.Name, "symbol", l.Symbol)
	x.emit(TokenAdded{Token: tokenAddr, Name: l.Name, Symbol: l.Symbol})
	return l, nil
}

// Deposit pulls amount of the token from the user into venue custody and
// credits their balance. The user must have approved the venue beforehand.
func (x *Exchange) Deposit(caller, tokenAddr common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return err
	}
	tok, err := x.backend.Token(tokenAddr)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := tok.TransferFrom(x.addr, caller, x.addr, amount); err != nil {
		return fmt.Errorf("deposit transfer: %w", err)
	}
	x.ledger.Credit(caller, tokenAddr, amount)

	b := x.store.NewBatch()
	if err := b.SaveBalance(caller, tokenAddr, x.ledger.Balance(caller, tokenAddr)); err != nil {
		return err
	}
	if err := x.store.Commit(b); err != nil {
		return err
	}

	x.log.Infow("tokens_deposited", "user", caller.Hex(), "token", tokenAddr.Hex(), "amount", amount.String())
	x.emit(TokensDeposited{User: caller, Token: tokenAddr, Amount: new(big.Int).Set(amount)})
	return nil
}

// Withdraw pushes amount of the token from venue custody back to the user.
func (x *Exchange) Withdraw(caller, tokenAddr common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return err
	}
	tok, err := x.backend.Token(tokenAddr)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if x.ledger.Balance(caller, tokenAddr).Cmp(amount) < 0 {
		return ledger.ErrInsufficientBalance
	}
	if err := tok.Transfer(x.addr, caller, amount); err != nil {
		return fmt.Errorf("withdraw transfer: %w", err)
	}
	if err := x.ledger.Debit(caller, tokenAddr, amount); err != nil {
		return err
	}

	b := x.store.NewBatch()
	if err := b.SaveBalance(caller, tokenAddr, x.ledger.Balance(caller, tokenAddr)); err != nil {
		return err
	}
	if err := x.store.Commit(b); err != nil {
		return err
	}

	x.log.Infow("tokens_withdrawn", "user", caller.Hex(), "token", tokenAddr.Hex(), "amount", amount.String())
	x.emit(Withdrawn{User: caller, Token: tokenAddr, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawEthers realizes accumulated sell proceeds and buy-order refunds.
// The outbound native transfer is the dispatch layer's leg, mirroring how
// valueSent arrives on placements and purchases.
func (x *Exchange) WithdrawEthers(caller common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	x.etherMu.Lock()
	defer x.etherMu.Unlock()

	if err := x.ledger.Debit(caller, ledger.Ether, amount); err != nil {
		return err
	}

	b := x.store.NewBatch()
	if err := b.SaveBalance(caller, ledger.Ether, x.ledger.Balance(caller, ledger.Ether)); err != nil {
		return err
	}
	if err := x.store.Commit(b); err != nil {
		return err
	}

	x.log.Infow("ethers_withdrawn", "user", caller.Hex(), "amount", amount.String())
	x.emit(EthersWithdrawn{User: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// PlaceSellOrder escrows amount tokens from the caller's balance and rests
// the order on the sell side. Returns the assigned order ID.
func (x *Exchange) PlaceSellOrder(caller, tokenAddr common.Address, price, amount *big.Int) (uint64, error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return 0, err
	}
	if err := checkOrderArgs(price, amount); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := x.ledger.Debit(caller, tokenAddr, amount); err != nil {
		return 0, err
	}

	o := &book.Order{
		ID:     m.sells.TakeID(),
		Owner:  caller,
		Price:  new(big.Int).Set(price),
		Amount: new(big.Int).Set(amount),
	}
	m.sells.Insert(o)

	b := x.store.NewBatch()
	if err := b.SaveBalance(caller, tokenAddr, x.ledger.Balance(caller, tokenAddr)); err != nil {
		return 0, err
	}
	if err := b.SaveOrder(tokenAddr, book.Sell, o); err != nil {
		return 0, err
	}
	if err := b.SaveSeq(tokenAddr, book.Sell, m.sells.NextID()); err != nil {
		return 0, err
	}
	if err := x.store.Commit(b); err != nil {
		return 0, err
	}

	x.log.Infow("sell_order_placed",
		"token", tokenAddr.Hex(), "id", o.ID, "owner", caller.Hex(),
		"price", price.String(), "amount", amount.String())
	x.emit(SellOrderPlaced{Token: tokenAddr, Price: new(big.Int).Set(price), Amount: new(big.Int).Set(amount)})
	return o.ID, nil
}

// PlaceBuyOrder escrows the order's cost out of valueSent and rests the
// order on the buy side. Any surplus over the cost is refunded to the
// caller's ether balance immediately.
func (x *Exchange) PlaceBuyOrder(caller, tokenAddr common.Address, price, amount, valueSent *big.Int) (uint64, error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return 0, err
	}
	if err := checkOrderArgs(price, amount); err != nil {
		return 0, err
	}
	if valueSent == nil {
		valueSent = new(big.Int)
	}
	cost := costOf(price, amount)
	if valueSent.Cmp(cost) < 0 {
		return 0, fmt.Errorf("%w: need %s, got %s", ErrInsufficientEthers, cost, valueSent)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	x.etherMu.Lock()
	defer x.etherMu.Unlock()

	surplus := new(big.Int).Sub(valueSent, cost)
	if surplus.Sign() > 0 {
		x.ledger.Credit(caller, ledger.Ether, surplus)
	}

	o := &book.Order{
		ID:     m.buys.TakeID(),
		Owner:  caller,
		Price:  new(big.Int).Set(price),
		Amount: new(big.Int).Set(amount),
		Escrow: cost,
	}
	m.buys.Insert(o)

	b := x.store.NewBatch()
	if surplus.Sign() > 0 {
		if err := b.SaveBalance(caller, ledger.Ether, x.ledger.Balance(caller, ledger.Ether)); err != nil {
			return 0, err
		}
	}
	if err := b.SaveOrder(tokenAddr, book.Buy, o); err != nil {
		return 0, err
	}
	if err := b.SaveSeq(tokenAddr, book.Buy, m.buys.NextID()); err != nil {
		return 0, err
	}
	if err := x.store.Commit(b); err != nil {
		return 0, err
	}

	x.log.Infow("buy_order_placed",
		"token", tokenAddr.Hex(), "id", o.ID, "owner", caller.Hex(),
		"price", price.String(), "amount", amount.String(), "escrow", cost.String())
	x.emit(BuyOrderPlaced{Token: tokenAddr, Price: new(big.Int).Set(price), Amount: new(big.Int).Set(amount)})
	return o.ID, nil
}

// CancelSellOrder removes the caller's resting sell order and returns its
// remaining token escrow.
func (x *Exchange) CancelSellOrder(caller, tokenAddr common.Address, orderID uint64) error {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.sells.Get(orderID)
	if err != nil {
		return err
	}
	if o.Owner != caller {
		return fmt.Errorf("%w: order %d", ErrNotOrderOwner, orderID)
	}
	if _, err := m.sells.Remove(orderID); err != nil {
		return err
	}
	x.ledger.Credit(o.Owner, tokenAddr, o.Amount)

	b := x.store.NewBatch()
	if err := b.SaveBalance(o.Owner, tokenAddr, x.ledger.Balance(o.Owner, tokenAddr)); err != nil {
		return err
	}
	if err := b.DeleteOrder(tokenAddr, book.Sell, orderID); err != nil {
		return err
	}
	if err := x.store.Commit(b); err != nil {
		return err
	}

	x.log.Infow("order_canceled", "token", tokenAddr.Hex(), "id", orderID, "side", "sell", "by", caller.Hex())
	x.emit(OrderCanceled{Token: tokenAddr, OrderID: orderID})
	return nil
}

// CancelBuyOrder removes the caller's resting buy order and returns its
// remaining native escrow to the ether balance.
func (x *Exchange) CancelBuyOrder(caller, tokenAddr common.Address, orderID uint64) error {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	x.etherMu.Lock()
	defer x.etherMu.Unlock()

	o, err := m.buys.Get(orderID)
	if err != nil {
		return err
	}
	if o.Owner != caller {
		return fmt.Errorf("%w: order %d", ErrNotOrderOwner, orderID)
	}
	if _, err := m.buys.Remove(orderID); err != nil {
		return err
	}
	if o.Escrow != nil && o.Escrow.Sign() > 0 {
		x.ledger.Credit(o.Owner, ledger.Ether, o.Escrow)
	}

	b := x.store.NewBatch()
	if err := b.SaveBalance(o.Owner, ledger.Ether, x.ledger.Balance(o.Owner, ledger.Ether)); err != nil {
		return err
	}
	if err := b.DeleteOrder(tokenAddr, book.Buy, orderID); err != nil {
		return err
	}
	if err := x.store.Commit(b); err != nil {
		return err
	}

	x.log.Infow("order_canceled", "token", tokenAddr.Hex(), "id", orderID, "side", "buy", "by", caller.Hex())
	x.emit(OrderCanceled{Token: tokenAddr, OrderID: orderID})
	return nil
}

// ListedTokens returns all listings in insertion order.
func (x *Exchange) ListedTokens() []token.Listing {
	return x.registry.Listings()
}

// CheckBalance returns the caller's free token balance.
func (x *Exchange) CheckBalance(user, tokenAddr common.Address) (*big.Int, error) {
	if !x.registry.IsListed(tokenAddr) {
		return nil, fmt.Errorf("%w: %s", token.ErrNotListed, tokenAddr.Hex())
	}
	return x.ledger.Balance(user, tokenAddr), nil
}

// EtherBalance returns the user's accumulated native-currency balance.
func (x *Exchange) EtherBalance(user common.Address) *big.Int {
	return x.ledger.Balance(user, ledger.Ether)
}

// TopSellOrders returns the n best-priced sell orders, cheapest first,
// padded with empty sentinels.
func (x *Exchange) TopSellOrders(tokenAddr common.Address, n int) ([]book.Order, error) {
	return x.topOrders(tokenAddr, book.Sell, n)
}

// TopBuyOrders returns the n best-priced buy orders, highest bid first,
// padded with empty sentinels.
func (x *Exchange) TopBuyOrders(tokenAddr common.Address, n int) ([]book.Order, error) {
	return x.topOrders(tokenAddr, book.Buy, n)
}

func (x *Exchange) topOrders(tokenAddr common.Address, side book.Side, n int) ([]book.Order, error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = x.depth
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookFor(side).TopN(n), nil
}

// OpenOrders returns the user's live orders on both sides, in rank order.
func (x *Exchange) OpenOrders(user, tokenAddr common.Address) (buys, sells []book.Order, err error) {
	m, err := x.listedMarket(tokenAddr)
	if err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buys.OrdersOf(user), m.sells.OrdersOf(user), nil
}

// Trades returns the token's persisted trade history, oldest first.
func (x *Exchange) Trades(tokenAddr common.Address) ([]book.Trade, error) {
	if !x.registry.IsListed(tokenAddr) {
		return nil, fmt.Errorf("%w: %s", token.ErrNotListed, tokenAddr.Hex())
	}
	return x.store.Trades(tokenAddr)
}

// costOf is the native cost of amount tokens at price: price × amount / wad,
// floored.
func costOf(price, amount *big.Int) *big.Int {
	cost := new(big.Int).Mul(price, amount)
	return cost.Quo(cost, wad)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// checkOrderArgs validates placement arguments; the amount check precedes
// the price check.
func checkOrderArgs(price, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return ErrZeroAmount
	}
	if price == nil || price.Sign() < 0 {
		return ErrNegativeAmount
	}
	if price.Sign() == 0 {
		return ErrZeroPrice
	}
	return nil
}
