package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

// maxDeposit removes funding from the retryable-ticket estimate so the
// node prices only the execution itself.
var maxDeposit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ProcessEstimateCosts estimates delivering one message. The gas limit comes
// from a fully built delivery call; a built call without a limit is an
// invariant violation surfaced as ErrGasLimitUnavailable.
//
// On rollup chains the primary estimate mixes base-layer posting costs with
// execution gas, so a second, execution-only figure is obtained through the
// node's virtual estimation contract and reported alongside.
func (m *Mailbox) ProcessEstimateCosts(ctx context.Context, message *protocol.Message, metadata []byte) (protocol.TxCostEstimate, error) {
	call, err := m.processCall(ctx, message, metadata, nil)
	if err != nil {
		return protocol.TxCostEstimate{}, err
	}
	if call.GasLimit == nil {
		return protocol.TxCostEstimate{}, fmt.Errorf("%w: delivery call for %s", protocol.ErrGasLimitUnavailable, message.ID())
	}

	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return protocol.TxCostEstimate{}, fmt.Errorf("%w: gas price suggestion failed: %w", protocol.ErrTransport, err)
	}

	estimate := protocol.TxCostEstimate{
		GasLimit: call.GasLimit,
		GasPrice: gasPrice,
	}
	if !m.isRollup {
		return estimate, nil
	}

	secondary, err := m.estimateExecutionGas(ctx, call.Data)
	if err != nil {
		return protocol.TxCostEstimate{}, err
	}
	estimate.SecondaryGasLimit = secondary
	return estimate, nil
}

// estimateExecutionGas isolates the execution-layer gas of a delivery by
// estimating it as a retryable ticket against the node's virtual estimation
// contract. Sender and refund addresses are irrelevant to the figure and
// left zero.
func (m *Mailbox) estimateExecutionGas(ctx context.Context, calldata []byte) (*big.Int, error) {
	data, err := bindings.PackEstimateRetryableTicket(
		common.Address{},
		maxDeposit,
		m.binding.Address(),
		big.NewInt(0),
		common.Address{},
		common.Address{},
		calldata,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrGasFill, err)
	}

	gas, err := m.client.EstimateGas(ctx, ethereum.CallMsg{
		To:   &bindings.NodeInterfaceAddress,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: execution gas estimation failed: %w", protocol.ErrGasFill, err)
	}
	return new(big.Int).SetUint64(gas), nil
}
