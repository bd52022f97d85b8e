package main

import (
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexchange/dexchange/params"
	"github.com/dexchange/dexchange/pkg/erc20"
	"github.com/dexchange/dexchange/pkg/exchange"
	"github.com/dexchange/dexchange/pkg/storage"
	"github.com/dexchange/dexchange/pkg/util"
)

var wad = big.NewInt(1_000_000_000_000_000_000)

func e18(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), wad) }

func e17(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(100_000_000_000_000_000))
}

// dexd runs the venue against an in-memory ERC20 backend: lists a few demo
// tokens, plays a short trading session and prints the resulting books.
// State persists in Pebble under cfg.Storage.DataDir, so a second run
// starts from the books the first one left behind.
func main() {
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.Storage.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Storage.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Storage.DataDir, "err", err)
	}
	defer store.Close()

	backend := erc20.NewMemoryBackend()
	moon := backend.Deploy(common.HexToAddress("0x00000000000000000000000000000000000e2001"), "Moon Token", "MOON")
	doge := backend.Deploy(common.HexToAddress("0x00000000000000000000000000000000000e2002"), "Doge Token", "DOGE")
	backend.Deploy(common.HexToAddress("0x00000000000000000000000000000000000e2003"), "Pepe Token", "PEPE")

	x, err := exchange.New(exchange.Options{
		Owner:   cfg.Venue.Owner,
		Venue:   cfg.Venue.Address,
		Backend: backend,
		Store:   store,
		Logger:  sugar,
		Depth:   cfg.Venue.Depth,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	events := x.Events().Subscribe(64)
	go func() {
		for ev := range events {
			sugar.Infow("venue_event", "event", ev.EventName())
		}
	}()

	for _, tok := range []common.Address{moon.Address(), doge.Address()} {
		if _, err := x.AddToken(cfg.Venue.Owner, tok); err != nil {
			sugar.Infow("token_already_listed", "token", tok.Hex())
		}
	}

	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	// Seed the maker side.
	moon.Mint(alice, e18(100))
	moon.Approve(alice, cfg.Venue.Address, e18(100))
	if err := x.Deposit(alice, moon.Address(), e18(100)); err != nil {
		sugar.Fatalw("deposit_failed", "err", err)
	}
	for _, o := range []struct{ price, amount *big.Int }{
		{e17(1), e18(25)},
		{e17(2), e18(20)},
		{e17(5), e18(5)},
	} {
		if _, err := x.PlaceSellOrder(alice, moon.Address(), o.price, o.amount); err != nil {
			sugar.Fatalw("place_sell_failed", "err", err)
		}
	}
	if _, err := x.PlaceBuyOrder(bob, moon.Address(), e17(1), e18(10), e18(1)); err != nil {
		sugar.Fatalw("place_buy_failed", "err", err)
	}

	// Taker sweeps the cheapest ask in full.
	res, err := x.BuyTokens(bob, moon.Address(), e17(25))
	if err != nil {
		sugar.Fatalw("buy_tokens_failed", "err", err)
	}
	sugar.Infow("session_buy",
		"spent", res.Spent.String(), "acquired", res.Acquired.String(), "fills", len(res.Trades))

	sells, err := x.TopSellOrders(moon.Address(), 0)
	if err != nil {
		sugar.Fatalw("top_sells_failed", "err", err)
	}
	for i, o := range sells {
		if o.ID == 0 {
			continue
		}
		sugar.Infow("top_sell", "rank", i, "id", o.ID, "price", o.Price.String(), "amount", o.Amount.String())
	}
	buys, err := x.TopBuyOrders(moon.Address(), 0)
	if err != nil {
		sugar.Fatalw("top_buys_failed", "err", err)
	}
	for i, o := range buys {
		if o.ID == 0 {
			continue
		}
		sugar.Infow("top_buy", "rank", i, "id", o.ID, "price", o.Price.String(), "amount", o.Amount.String())
	}

	sugar.Infow("session_done",
		"alice_ethers", x.EtherBalance(alice).String(),
		"bob_ethers", x.EtherBalance(bob).String())
}
