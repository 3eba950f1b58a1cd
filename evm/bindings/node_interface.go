package bindings

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NodeInterfaceAddress is the virtual contract rollup nodes expose for
// execution-layer gas estimation. It is not a real deployment; the node
// intercepts calls to it.
var NodeInterfaceAddress = common.HexToAddress("0x00000000000000000000000000000000000000C8")

const nodeInterfaceABIJSON = `[
	{"type":"function","name":"estimateRetryableTicket","stateMutability":"nonpayable","inputs":[{"name":"sender","type":"address"},{"name":"deposit","type":"uint256"},{"name":"to","type":"address"},{"name":"l2CallValue","type":"uint256"},{"name":"excessFeeRefundAddress","type":"address"},{"name":"callValueRefundAddress","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

var nodeInterfaceABI = mustParseABI(nodeInterfaceABIJSON)

// PackEstimateRetryableTicket returns the calldata of an
// estimateRetryableTicket call targeting `to` with the given payload.
func PackEstimateRetryableTicket(sender common.Address, deposit *big.Int, to common.Address, l2CallValue *big.Int, excessFeeRefund, callValueRefund common.Address, data []byte) ([]byte, error) {
	packed, err := nodeInterfaceABI.Pack("estimateRetryableTicket",
		sender, deposit, to, l2CallValue, excessFeeRefund, callValueRefund, data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack estimateRetryableTicket call: %w", err)
	}
	return packed, nil
}
