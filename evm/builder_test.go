package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane-evm/protocol"
)

func TestBuilderComponents(t *testing.T) {
	builder := NewBuilder(testLogger(t), testConf(), WithClient(&fakeClient{}))
	ctx := context.Background()

	mailbox, err := builder.Mailbox(ctx)
	require.NoError(t, err)
	require.NotNil(t, mailbox)
	require.Equal(t, protocol.Domain(1000), mailbox.Domain())

	hook, err := builder.MerkleTreeHook(ctx)
	require.NoError(t, err)
	require.NotNil(t, hook)

	dispatch, err := builder.DispatchIndexer(ctx)
	require.NoError(t, err)
	require.NotNil(t, dispatch)

	delivery, err := builder.DeliveryIndexer(ctx)
	require.NoError(t, err)
	require.NotNil(t, delivery)

	insertions, err := builder.TreeInsertionIndexer(ctx)
	require.NoError(t, err)
	require.NotNil(t, insertions)

	require.False(t, builder.CanSign())
}

func TestBuilderWithSigner(t *testing.T) {
	signer, err := NewPrivateKeySigner(testKeyHex)
	require.NoError(t, err)

	builder := NewBuilder(testLogger(t), testConf(), WithClient(&fakeClient{}), WithSigner(signer))
	require.True(t, builder.CanSign())
}

func TestBuilderConnectRequiresEndpoint(t *testing.T) {
	conf := testConf()
	conf.RPCURL = ""

	builder := NewBuilder(testLogger(t), conf)
	_, err := builder.Mailbox(context.Background())
	require.ErrorContains(t, err, "no RPC endpoint")
}

func TestReadOnlyMailboxRejectsSubmission(t *testing.T) {
	builder := NewBuilder(testLogger(t), testConf(), WithClient(&fakeClient{}))

	mailbox, err := builder.Mailbox(context.Background())
	require.NoError(t, err)

	_, err = mailbox.Process(context.Background(), dispatchedMessage(1), nil, big.NewInt(100_000))
	require.ErrorIs(t, err, protocol.ErrSubmission)
}

func TestFinalizedBlockNumberNotFound(t *testing.T) {
	client := &fakeClient{
		headerByNumber: func(context.Context, *big.Int) (*types.Header, error) {
			return nil, ethereum.NotFound
		},
	}

	_, err := FinalizedBlockNumber(context.Background(), client)
	require.ErrorIs(t, err, protocol.ErrFinalityUnknown)
}

func TestFinalizedBlockNumberTransportError(t *testing.T) {
	client := &fakeClient{
		headerByNumber: func(context.Context, *big.Int) (*types.Header, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := FinalizedBlockNumber(context.Background(), client)
	require.ErrorIs(t, err, protocol.ErrTransport)
}
