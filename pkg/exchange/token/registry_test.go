package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexchange/dexchange/pkg/erc20"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000000")
	stranger = common.HexToAddress("0x2000000000000000000000000000000000000000")
)

func deploy(addr string, name, symbol string) erc20.Token {
	return erc20.NewMemoryToken(common.HexToAddress(addr), name, symbol)
}

func TestOnlyOwnerCanAdd(t *testing.T) {
	r := NewRegistry(owner)
	tok := deploy("0x01", "ExchangeToken1", "EXT1")

	if _, err := r.Add(stranger, tok); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if _, err := r.Add(owner, tok); err != nil {
		t.Fatalf("owner add failed: %v", err)
	}
}

func TestAddRejectsEmptyAddress(t *testing.T) {
	r := NewRegistry(owner)
	tok := erc20.NewMemoryToken(common.Address{}, "Zero", "ZERO")

	if _, err := r.Add(owner, tok); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("want ErrEmptyAddress, got %v", err)
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	r := NewRegistry(owner)
	tok := deploy("0x01", "ExchangeToken1", "EXT1")

	if _, err := r.Add(owner, tok); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add(owner, tok); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("want ErrAlreadyListed, got %v", err)
	}
}

func TestListingsKeepInsertionOrder(t *testing.T) {
	r := NewRegistry(owner)
	r.Add(owner, deploy("0x01", "ExchangeToken1", "EXT1"))
	r.Add(owner, deploy("0x02", "ExchangeToken2", "EXT2"))

	ls := r.Listings()
	if len(ls) != 2 {
		t.Fatalf("len = %d, want 2", len(ls))
	}
	if ls[0].Name != "ExchangeToken1" || ls[1].Name != "ExchangeToken2" {
		t.Errorf("order wrong: %s, %s", ls[0].Name, ls[1].Name)
	}
	if !r.IsListed(common.HexToAddress("0x01")) {
		t.Errorf("token1 not listed")
	}
	if r.IsListed(common.HexToAddress("0x03")) {
		t.Errorf("unlisted token reported listed")
	}
}

func TestListingMetadataFromContract(t *testing.T) {
	r := NewRegistry(owner)
	r.Add(owner, deploy("0x02", "ExchangeToken2", "EXT2"))

	l, ok := r.Get(common.HexToAddress("0x02"))
	if !ok {
		t.Fatal("listing missing")
	}
	if l.Name != "ExchangeToken2" || l.Symbol != "EXT2" {
		t.Errorf("metadata = %s/%s", l.Name, l.Symbol)
	}
}
