package evm

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

func estimatorClient(conf ConnectionConf, executionGas uint64) *fakeClient {
	return &fakeClient{
		estimateGas: func(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
			if *msg.To == bindings.NodeInterfaceAddress {
				return executionGas, nil
			}
			return 90_000, nil
		},
		suggestGasPrice: func(context.Context) (*big.Int, error) {
			return big.NewInt(7), nil
		},
	}
}

func TestProcessEstimateCosts(t *testing.T) {
	conf := testConf()
	mailbox := testMailbox(t, estimatorClient(conf, 0), conf, nil)

	estimate, err := mailbox.ProcessEstimateCosts(context.Background(), dispatchedMessage(1), []byte{0xaa})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(90_000+gasEstimateBuffer), estimate.GasLimit)
	require.Equal(t, big.NewInt(7), estimate.GasPrice)
	require.Nil(t, estimate.SecondaryGasLimit)
}

func TestProcessEstimateCostsRollup(t *testing.T) {
	conf := testConf()
	conf.IsRollup = true
	mailbox := testMailbox(t, estimatorClient(conf, 3_333), conf, nil)

	estimate, err := mailbox.ProcessEstimateCosts(context.Background(), dispatchedMessage(1), []byte{0xaa})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(90_000+gasEstimateBuffer), estimate.GasLimit)
	require.Equal(t, big.NewInt(3_333), estimate.SecondaryGasLimit)
}

func TestProcessEstimateCostsGasFillFailure(t *testing.T) {
	client := &fakeClient{} // estimateGas not stubbed
	mailbox := testMailbox(t, client, testConf(), nil)

	_, err := mailbox.ProcessEstimateCosts(context.Background(), dispatchedMessage(1), []byte{0xaa})
	require.ErrorIs(t, err, protocol.ErrGasFill)
}
