package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

var (
	receiptRetryInitialBackoff = time.Second
	receiptRetryMaxBackoff     = 30 * time.Second
)

// MailboxDispatchIndexer indexes Dispatch events from the mailbox, yielding
// the dispatched messages ordered by their intrinsic nonce.
type MailboxDispatchIndexer struct {
	lggr    *zap.SugaredLogger
	client  Client
	binding *bindings.Mailbox
}

var _ protocol.SequenceAwareIndexer[*protocol.Message] = (*MailboxDispatchIndexer)(nil)

func NewMailboxDispatchIndexer(lggr *zap.SugaredLogger, client Client, conf ConnectionConf) *MailboxDispatchIndexer {
	return &MailboxDispatchIndexer{
		lggr:    lggr.Named("dispatch-indexer"),
		client:  client,
		binding: bindings.NewMailbox(conf.MailboxAddress, client),
	}
}

// FetchInRange returns the messages dispatched within [start, end], sorted
// by nonce. Log position is not a reliable order for dispatches: reorgs and
// provider quirks can deliver them out of sequence, the nonce cannot.
func (i *MailboxDispatchIndexer) FetchInRange(ctx context.Context, start, end uint64) ([]protocol.IndexedEvent[*protocol.Message], error) {
	logs, err := filterRange(ctx, i.client, i.binding.Address(), i.binding.DispatchTopic(), start, end)
	if err != nil {
		return nil, err
	}

	events, err := i.decodeDispatches(logs)
	if err != nil {
		return nil, err
	}
	sortDispatches(events)
	return events, nil
}

// FetchByTransaction returns the messages dispatched by one transaction.
// The receipt lookup retries transient failures indefinitely; a known
// transaction's logs are always eventually retrievable, so only caller
// cancellation stops the attempt.
func (i *MailboxDispatchIndexer) FetchByTransaction(ctx context.Context, txHash protocol.Bytes32) ([]protocol.IndexedEvent[*protocol.Message], error) {
	logs, err := fetchReceiptLogs(ctx, i.lggr, i.client, common.Hash(txHash))
	if err != nil {
		return nil, err
	}

	events, err := i.decodeDispatches(filterReceiptLogs(logs, i.binding.Address(), i.binding.DispatchTopic()))
	if err != nil {
		return nil, err
	}
	sortDispatches(events)
	return events, nil
}

func (i *MailboxDispatchIndexer) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	return FinalizedBlockNumber(ctx, i.client)
}

// LatestSequenceAndTip reads the finalized tip first, then the dispatch
// counter pinned to that exact height. Reading the counter at "latest"
// instead would let a dispatch landing between the two reads skew the pair.
func (i *MailboxDispatchIndexer) LatestSequenceAndTip(ctx context.Context) (protocol.SequencePosition, error) {
	tip, err := FinalizedBlockNumber(ctx, i.client)
	if err != nil {
		return protocol.SequencePosition{}, err
	}

	nonce, err := i.binding.Nonce(ctx, new(big.Int).SetUint64(tip))
	if err != nil {
		return protocol.SequencePosition{}, fmt.Errorf("%w: failed to read mailbox nonce: %w", protocol.ErrTransport, err)
	}
	return protocol.SequencePosition{Count: &nonce, Tip: tip}, nil
}

func (i *MailboxDispatchIndexer) decodeDispatches(logs []types.Log) ([]protocol.IndexedEvent[*protocol.Message], error) {
	events := make([]protocol.IndexedEvent[*protocol.Message], 0, len(logs))
	for _, log := range logs {
		raw, err := i.binding.UnpackDispatch(log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrProtocolDecode, err)
		}
		message, err := protocol.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, protocol.IndexedEvent[*protocol.Message]{
			Event: message,
			Meta:  logMeta(log),
		})
	}
	return events, nil
}

func sortDispatches(events []protocol.IndexedEvent[*protocol.Message]) {
	sort.Slice(events, func(a, b int) bool {
		return events[a].Event.Nonce < events[b].Event.Nonce
	})
}

// MailboxDeliveryIndexer indexes delivery confirmations from the mailbox.
// Deliveries carry no intrinsic sequence number, so they stay in log order
// and the sequence count reads nil.
type MailboxDeliveryIndexer struct {
	lggr    *zap.SugaredLogger
	client  Client
	binding *bindings.Mailbox
}

var _ protocol.SequenceAwareIndexer[protocol.Delivery] = (*MailboxDeliveryIndexer)(nil)

func NewMailboxDeliveryIndexer(lggr *zap.SugaredLogger, client Client, conf ConnectionConf) *MailboxDeliveryIndexer {
	return &MailboxDeliveryIndexer{
		lggr:    lggr.Named("delivery-indexer"),
		client:  client,
		binding: bindings.NewMailbox(conf.MailboxAddress, client),
	}
}

func (i *MailboxDeliveryIndexer) FetchInRange(ctx context.Context, start, end uint64) ([]protocol.IndexedEvent[protocol.Delivery], error) {
	logs, err := filterRange(ctx, i.client, i.binding.Address(), i.binding.ProcessIdTopic(), start, end)
	if err != nil {
		return nil, err
	}
	return i.decodeDeliveries(logs)
}

func (i *MailboxDeliveryIndexer) FetchByTransaction(ctx context.Context, txHash protocol.Bytes32) ([]protocol.IndexedEvent[protocol.Delivery], error) {
	logs, err := fetchReceiptLogs(ctx, i.lggr, i.client, common.Hash(txHash))
	if err != nil {
		return nil, err
	}
	return i.decodeDeliveries(filterReceiptLogs(logs, i.binding.Address(), i.binding.ProcessIdTopic()))
}

func (i *MailboxDeliveryIndexer) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	return FinalizedBlockNumber(ctx, i.client)
}

// LatestSequenceAndTip reports a nil count: deliveries have no counter and
// consumers fall back to log order.
func (i *MailboxDeliveryIndexer) LatestSequenceAndTip(ctx context.Context) (protocol.SequencePosition, error) {
	tip, err := FinalizedBlockNumber(ctx, i.client)
	if err != nil {
		return protocol.SequencePosition{}, err
	}
	return protocol.SequencePosition{Tip: tip}, nil
}

func (i *MailboxDeliveryIndexer) decodeDeliveries(logs []types.Log) ([]protocol.IndexedEvent[protocol.Delivery], error) {
	events := make([]protocol.IndexedEvent[protocol.Delivery], 0, len(logs))
	for _, log := range logs {
		id, err := i.binding.UnpackProcessId(log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrProtocolDecode, err)
		}
		events = append(events, protocol.IndexedEvent[protocol.Delivery]{
			Event: protocol.Delivery{MessageID: id},
			Meta:  logMeta(log),
		})
	}
	return events, nil
}

// filterRange fetches one contract's logs for a single topic over an
// inclusive block range. An inverted range is a caller error, rejected
// before any network call.
func filterRange(ctx context.Context, client Client, address common.Address, topic common.Hash, start, end uint64) ([]types.Log, error) {
	if start > end {
		return nil, fmt.Errorf("invalid block range: start %d > end %d", start, end)
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(start),
		ToBlock:   new(big.Int).SetUint64(end),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to filter logs in [%d, %d]: %w", protocol.ErrTransport, start, end, err)
	}
	return logs, nil
}

// fetchReceiptLogs retrieves a transaction's logs with unlimited retry on
// failure, backing off between attempts. Cancellation is the only way out.
func fetchReceiptLogs(ctx context.Context, lggr *zap.SugaredLogger, client Client, txHash common.Hash) ([]*types.Log, error) {
	retry := retrypolicy.NewBuilder[*types.Receipt]().
		WithMaxRetries(-1).
		WithBackoff(receiptRetryInitialBackoff, receiptRetryMaxBackoff).
		OnRetry(func(event failsafe.ExecutionEvent[*types.Receipt]) {
			lggr.Debugw("receipt not yet available, retrying", "tx", txHash.Hex(), "attempt", event.Attempts())
		}).
		Build()

	receipt, err := failsafe.With(retry).
		WithContext(ctx).
		Get(func() (*types.Receipt, error) {
			return client.TransactionReceipt(ctx, txHash)
		})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch receipt of %s: %w", protocol.ErrTransport, txHash.Hex(), err)
	}
	return receipt.Logs, nil
}

func filterReceiptLogs(logs []*types.Log, address common.Address, topic common.Hash) []types.Log {
	var matched []types.Log
	for _, log := range logs {
		if log == nil || log.Address != address || len(log.Topics) == 0 || log.Topics[0] != topic {
			continue
		}
		matched = append(matched, *log)
	}
	return matched
}

func logMeta(log types.Log) protocol.LogMeta {
	return protocol.LogMeta{
		TxHash:      protocol.Bytes32(log.TxHash),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}
}
