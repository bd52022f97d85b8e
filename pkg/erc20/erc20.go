// Package erc20 is the venue's port to the token contracts it trades.
// The venue never holds token state itself; it pulls and pushes balances
// through this interface and trusts the dispatch layer for caller identity.
package erc20

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientAllowance = errors.New("erc20: insufficient allowance")
	ErrInsufficientFunds     = errors.New("erc20: transfer amount exceeds balance")
	ErrUnknownToken          = errors.New("erc20: unknown token")
)

// Token is one ERC20 contract binding.
//
// TransferFrom moves amount from `from` to `to` drawing down the allowance
// `from` granted to `operator` (the venue). Transfer moves amount out of
// `from`'s own balance. Amounts are in the token's smallest unit.
type Token interface {
	Address() common.Address
	Name() string
	Symbol() string
	BalanceOf(owner common.Address) *big.Int
	TransferFrom(operator, from, to common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
}

// Backend resolves a token address to its contract binding.
type Backend interface {
	Token(addr common.Address) (Token, error)
}
