package aa

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	// DefaultFactoryAddress deploys marketplace accounts through createAccount(owner, salt).
	DefaultFactoryAddress = common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7")

	// DefaultSalt is the salt accounts are created with unless configured otherwise.
	DefaultSalt = common.Big0
)
