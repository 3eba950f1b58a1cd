package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

func dispatchedMessage(nonce uint32) *protocol.Message {
	return &protocol.Message{
		Version:     protocol.MessageVersion,
		Nonce:       nonce,
		Origin:      1000,
		Destination: 2000,
		Body:        protocol.ByteSlice{0x01, 0x02},
	}
}

func dispatchLog(t *testing.T, conf ConnectionConf, msg *protocol.Message, blockNumber uint64, logIndex uint) types.Log {
	t.Helper()
	topic := bindings.NewMailbox(conf.MailboxAddress, nil).DispatchTopic()
	return types.Log{
		Address:     conf.MailboxAddress,
		Topics:      []common.Hash{topic, {}, {}, {}},
		Data:        packValues(t, []string{"bytes"}, []byte(msg.Encode())),
		BlockNumber: blockNumber,
		TxHash:      common.HexToHash("0xabcd"),
		Index:       logIndex,
	}
}

func TestDispatchIndexerFetchInRangeSortsByNonce(t *testing.T) {
	conf := testConf()
	outOfOrder := []types.Log{
		dispatchLog(t, conf, dispatchedMessage(7), 12, 0),
		dispatchLog(t, conf, dispatchedMessage(3), 10, 1),
	}

	client := &fakeClient{
		filterLogs: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			require.Equal(t, uint64(10), q.FromBlock.Uint64())
			require.Equal(t, uint64(20), q.ToBlock.Uint64())
			require.Equal(t, []common.Address{conf.MailboxAddress}, q.Addresses)
			return outOfOrder, nil
		},
	}

	indexer := NewMailboxDispatchIndexer(testLogger(t), client, conf)
	events, err := indexer.FetchInRange(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, uint32(3), events[0].Event.Nonce)
	require.Equal(t, uint32(7), events[1].Event.Nonce)
	require.Equal(t, uint64(10), events[0].Meta.BlockNumber)
	require.Equal(t, uint(1), events[0].Meta.LogIndex)
}

func TestDispatchIndexerRejectsInvertedRange(t *testing.T) {
	called := false
	client := &fakeClient{
		filterLogs: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			called = true
			return nil, nil
		},
	}

	indexer := NewMailboxDispatchIndexer(testLogger(t), client, testConf())
	_, err := indexer.FetchInRange(context.Background(), 20, 10)
	require.ErrorContains(t, err, "invalid block range")
	require.False(t, called)
}

func TestDispatchIndexerFetchInRangeTransportError(t *testing.T) {
	client := &fakeClient{
		filterLogs: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, errors.New("connection reset")
		},
	}

	indexer := NewMailboxDispatchIndexer(testLogger(t), client, testConf())
	_, err := indexer.FetchInRange(context.Background(), 1, 2)
	require.ErrorIs(t, err, protocol.ErrTransport)
}

func TestDispatchIndexerFetchByTransactionRetries(t *testing.T) {
	restoreInitial, restoreMax := receiptRetryInitialBackoff, receiptRetryMaxBackoff
	receiptRetryInitialBackoff, receiptRetryMaxBackoff = time.Millisecond, 2*time.Millisecond
	defer func() {
		receiptRetryInitialBackoff, receiptRetryMaxBackoff = restoreInitial, restoreMax
	}()

	conf := testConf()
	wanted := dispatchLog(t, conf, dispatchedMessage(5), 9, 0)
	unrelated := types.Log{Address: common.HexToAddress("0x9999999999999999999999999999999999999999")}

	attempts := 0
	client := &fakeClient{
		transactionReceipt: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("not found yet")
			}
			return &types.Receipt{Logs: []*types.Log{&unrelated, &wanted}}, nil
		},
	}

	indexer := NewMailboxDispatchIndexer(testLogger(t), client, conf)
	events, err := indexer.FetchByTransaction(context.Background(), protocol.Bytes32(wanted.TxHash))
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Len(t, events, 1)
	require.Equal(t, uint32(5), events[0].Event.Nonce)
}

func TestDispatchIndexerLatestSequenceAndTip(t *testing.T) {
	conf := testConf()
	client := &fakeClient{
		headerByNumber: finalizedAt(42),
		callContract: func(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			require.True(t, hasSelector(msg.Data, "nonce()"))
			require.Equal(t, uint64(42), blockNumber.Uint64())
			return packValues(t, []string{"uint32"}, uint32(9)), nil
		},
	}

	indexer := NewMailboxDispatchIndexer(testLogger(t), client, conf)
	pos, err := indexer.LatestSequenceAndTip(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pos.Count)
	require.Equal(t, uint32(9), *pos.Count)
	require.Equal(t, uint64(42), pos.Tip)
}

func TestDeliveryIndexerFetchInRange(t *testing.T) {
	conf := testConf()
	topic := bindings.NewMailbox(conf.MailboxAddress, nil).ProcessIdTopic()
	id := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000deadbeef")

	client := &fakeClient{
		filterLogs: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{{
				Address:     conf.MailboxAddress,
				Topics:      []common.Hash{topic, id},
				BlockNumber: 7,
			}}, nil
		},
	}

	indexer := NewMailboxDeliveryIndexer(testLogger(t), client, conf)
	events, err := indexer.FetchInRange(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, protocol.Bytes32(id), events[0].Event.MessageID)
	require.Equal(t, uint64(7), events[0].Meta.BlockNumber)
}

func TestDeliveryIndexerReportsNilCount(t *testing.T) {
	client := &fakeClient{headerByNumber: finalizedAt(42)}

	indexer := NewMailboxDeliveryIndexer(testLogger(t), client, testConf())
	pos, err := indexer.LatestSequenceAndTip(context.Background())
	require.NoError(t, err)
	require.Nil(t, pos.Count)
	require.Equal(t, uint64(42), pos.Tip)
}
