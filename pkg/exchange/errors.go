package exchange

import "errors"

var (
	ErrZeroAmount            = errors.New("order token amount can not be 0")
	ErrZeroPrice             = errors.New("order price can not be 0")
	ErrInsufficientEthers    = errors.New("insufficient ethers sent")
	ErrZeroPurchase          = errors.New("purchase price can not be 0")
	ErrSellZero              = errors.New("can not sell 0 tokens")
	ErrInsufficientLiquidity = errors.New("there is not enough liquidity on the exchange")
	ErrNegativeAmount        = errors.New("amount can not be negative")
	ErrNotOrderOwner         = errors.New("only the order owner can cancel it")
)
