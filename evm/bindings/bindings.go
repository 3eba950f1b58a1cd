// Package bindings carries hand-maintained typed wrappers for the onchain
// contracts this adapter orchestrates. Only the methods and events the
// adapter consumes are declared.
package bindings

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the read-only backend the wrappers call through.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func mustParseABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded ABI: %v", err))
	}
	return parsed
}

// call packs a method call, executes it at the given block (nil for latest)
// and returns the unpacked outputs.
func call(ctx context.Context, caller ContractCaller, contractABI abi.ABI, address common.Address, blockNumber *big.Int, method string, args ...any) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input}, blockNumber)
	if err != nil {
		return nil, err
	}

	results, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return results, nil
}
