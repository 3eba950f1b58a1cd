package bindings

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticall3Address is the canonical Multicall3 deployment shared by
// most EVM chains.
var DefaultMulticall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const multicall3ABIJSON = `[
	{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`

var multicall3ABI = mustParseABI(multicall3ABIJSON)

// Multicall3Call is one entry of an aggregate3 batch.
type Multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Multicall3Result is the per-call outcome of an aggregate3 execution.
type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// PackAggregate3 returns the calldata of an aggregate3(calls) invocation.
func PackAggregate3(calls []Multicall3Call) ([]byte, error) {
	data, err := multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate3 call: %w", err)
	}
	return data, nil
}

// UnpackAggregate3 decodes the per-call results of an aggregate3 return blob.
func UnpackAggregate3(output []byte) ([]Multicall3Result, error) {
	out, err := multicall3ABI.Unpack("aggregate3", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack aggregate3 result: %w", err)
	}

	results, ok := abi.ConvertType(out[0], new([]Multicall3Result)).(*[]Multicall3Result)
	if !ok {
		return nil, fmt.Errorf("unexpected aggregate3 result type %T", out[0])
	}
	return *results, nil
}

// PackAggregate3Output encodes per-call results the way the contract returns
// them. Used by tests to fabricate probe responses.
func PackAggregate3Output(results []Multicall3Result) ([]byte, error) {
	return multicall3ABI.Methods["aggregate3"].Outputs.Pack(results)
}
