package storage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexchange/dexchange/pkg/exchange/book"
)

// Pebble key schema. Address segments are 0x-prefixed hex (fixed width, no
// colons), so splitting on ':' is unambiguous.
//
//	tok:<addr>                 → Listing
//	bal:<user>:<asset>         → balance
//	ord:<token>:<a|b>:<id16x>  → resting order (a = ask/sell, b = bid/buy)
//	seq:<token>:<a|b>          → next order ID, 8-byte big-endian
//	trade:<token>:<ts20>:<id>  → trade record
const (
	prefixListing = "tok:"
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixSeq     = "seq:"
	prefixTrade   = "trade:"
)

func sideTag(s book.Side) string {
	if s == book.Buy {
		return "b"
	}
	return "a"
}

func tagSide(tag string) (book.Side, error) {
	switch tag {
	case "b":
		return book.Buy, nil
	case "a":
		return book.Sell, nil
	}
	return 0, fmt.Errorf("bad side tag %q", tag)
}

func listingKey(addr common.Address) []byte {
	return []byte(prefixListing + addr.Hex())
}

func balanceKey(user, asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, user.Hex(), asset.Hex()))
}

func parseBalanceKey(key []byte) (user, asset common.Address, err error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixBalance), ":")
	if len(parts) != 2 {
		return user, asset, fmt.Errorf("bad balance key %q", key)
	}
	return common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), nil
}

func orderKey(tok common.Address, side book.Side, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%016x", prefixOrder, tok.Hex(), sideTag(side), id))
}

func parseOrderKey(key []byte) (tok common.Address, side book.Side, err error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixOrder), ":")
	if len(parts) != 3 {
		return tok, side, fmt.Errorf("bad order key %q", key)
	}
	side, err = tagSide(parts[1])
	return common.HexToAddress(parts[0]), side, err
}

func seqKey(tok common.Address, side book.Side) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixSeq, tok.Hex(), sideTag(side)))
}

func parseSeqKey(key []byte) (tok common.Address, side book.Side, err error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixSeq), ":")
	if len(parts) != 2 {
		return tok, side, fmt.Errorf("bad seq key %q", key)
	}
	side, err = tagSide(parts[1])
	return common.HexToAddress(parts[0]), side, err
}

func tradeKey(t book.Trade) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, t.Token.Hex(), t.Time.UnixNano(), t.ID))
}

func tradePrefix(tok common.Address) []byte {
	return []byte(prefixTrade + tok.Hex() + ":")
}

// prefixBounds returns [prefix, upper) bounds for a pebble iterator.
func prefixBounds(prefix []byte) ([]byte, []byte) {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	upper[len(upper)-1]++
	return prefix, upper
}
