package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

// MerkleTreeHookAdapter reads the onchain incremental merkle accumulator.
// Every read accepts an optional lag behind the finalized tip, letting
// checkpoint signers agree on a common height.
type MerkleTreeHookAdapter struct {
	lggr    *zap.SugaredLogger
	client  Client
	domain  protocol.Domain
	binding *bindings.MerkleTreeHook
}

var _ protocol.MerkleTreeHook = (*MerkleTreeHookAdapter)(nil)

func NewMerkleTreeHookAdapter(lggr *zap.SugaredLogger, client Client, conf ConnectionConf) *MerkleTreeHookAdapter {
	return &MerkleTreeHookAdapter{
		lggr:    lggr.Named("merkle-tree-hook"),
		client:  client,
		domain:  protocol.Domain(conf.Domain),
		binding: bindings.NewMerkleTreeHook(conf.MerkleTreeHookAddress, client),
	}
}

// blockForLag resolves the read height: the finalized tip, minus the
// requested lag. A lag reaching past block zero exceeds the chain's history.
func (h *MerkleTreeHookAdapter) blockForLag(ctx context.Context, lag *uint64) (*big.Int, error) {
	tip, err := FinalizedBlockNumber(ctx, h.client)
	if err != nil {
		return nil, err
	}
	if lag == nil {
		return new(big.Int).SetUint64(tip), nil
	}
	if *lag > tip {
		return nil, fmt.Errorf("%w: lag %d behind finalized tip %d", protocol.ErrLagExceedsHistory, *lag, tip)
	}
	return new(big.Int).SetUint64(tip - *lag), nil
}

// Tree returns the accumulator state at the lagged height as a local
// incremental merkle, ready for offchain ingestion and proof building.
func (h *MerkleTreeHookAdapter) Tree(ctx context.Context, lag *uint64) (*protocol.IncrementalMerkle, error) {
	height, err := h.blockForLag(ctx, lag)
	if err != nil {
		return nil, err
	}

	tree, err := h.binding.Tree(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read merkle tree: %w", protocol.ErrTransport, err)
	}

	var branch [protocol.TreeDepth]protocol.Bytes32
	for i, node := range tree.Branch {
		branch[i] = node
	}
	return protocol.NewIncrementalMerkle(branch, tree.Count.Uint64()), nil
}

// Count returns the number of ingested leaves at the lagged height.
func (h *MerkleTreeHookAdapter) Count(ctx context.Context, lag *uint64) (uint32, error) {
	height, err := h.blockForLag(ctx, lag)
	if err != nil {
		return 0, err
	}

	count, err := h.binding.Count(ctx, height)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read merkle tree count: %w", protocol.ErrTransport, err)
	}
	return count, nil
}

// LatestCheckpoint returns the (root, index) commitment at the lagged height.
func (h *MerkleTreeHookAdapter) LatestCheckpoint(ctx context.Context, lag *uint64) (protocol.Checkpoint, error) {
	height, err := h.blockForLag(ctx, lag)
	if err != nil {
		return protocol.Checkpoint{}, err
	}

	root, index, err := h.binding.LatestCheckpoint(ctx, height)
	if err != nil {
		return protocol.Checkpoint{}, fmt.Errorf("%w: failed to read latest checkpoint: %w", protocol.ErrTransport, err)
	}
	return protocol.Checkpoint{
		MerkleTreeHookAddress: addressToBytes32(h.binding.Address()),
		Domain:                h.domain,
		Root:                  root,
		Index:                 index,
	}, nil
}

// MerkleTreeHookIndexer indexes tree-insertion events. Leaf indexes are the
// intrinsic sequence, and the onchain leaf counter backs the sequence reads.
type MerkleTreeHookIndexer struct {
	lggr    *zap.SugaredLogger
	client  Client
	binding *bindings.MerkleTreeHook
}

var _ protocol.SequenceAwareIndexer[protocol.TreeInsertion] = (*MerkleTreeHookIndexer)(nil)

func NewMerkleTreeHookIndexer(lggr *zap.SugaredLogger, client Client, conf ConnectionConf) *MerkleTreeHookIndexer {
	return &MerkleTreeHookIndexer{
		lggr:    lggr.Named("merkle-tree-hook-indexer"),
		client:  client,
		binding: bindings.NewMerkleTreeHook(conf.MerkleTreeHookAddress, client),
	}
}

// FetchInRange returns insertions within [start, end], sorted by leaf index.
func (i *MerkleTreeHookIndexer) FetchInRange(ctx context.Context, start, end uint64) ([]protocol.IndexedEvent[protocol.TreeInsertion], error) {
	logs, err := filterRange(ctx, i.client, i.binding.Address(), i.binding.InsertedIntoTreeTopic(), start, end)
	if err != nil {
		return nil, err
	}

	events, err := i.decodeInsertions(logs)
	if err != nil {
		return nil, err
	}
	sortInsertions(events)
	return events, nil
}

func (i *MerkleTreeHookIndexer) FetchByTransaction(ctx context.Context, txHash protocol.Bytes32) ([]protocol.IndexedEvent[protocol.TreeInsertion], error) {
	logs, err := fetchReceiptLogs(ctx, i.lggr, i.client, common.Hash(txHash))
	if err != nil {
		return nil, err
	}

	events, err := i.decodeInsertions(filterReceiptLogs(logs, i.binding.Address(), i.binding.InsertedIntoTreeTopic()))
	if err != nil {
		return nil, err
	}
	sortInsertions(events)
	return events, nil
}

func (i *MerkleTreeHookIndexer) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	return FinalizedBlockNumber(ctx, i.client)
}

// LatestSequenceAndTip pins the leaf counter to the finalized tip it reports.
func (i *MerkleTreeHookIndexer) LatestSequenceAndTip(ctx context.Context) (protocol.SequencePosition, error) {
	tip, err := FinalizedBlockNumber(ctx, i.client)
	if err != nil {
		return protocol.SequencePosition{}, err
	}

	count, err := i.binding.Count(ctx, new(big.Int).SetUint64(tip))
	if err != nil {
		return protocol.SequencePosition{}, fmt.Errorf("%w: failed to read merkle tree count: %w", protocol.ErrTransport, err)
	}
	return protocol.SequencePosition{Count: &count, Tip: tip}, nil
}

func (i *MerkleTreeHookIndexer) decodeInsertions(logs []types.Log) ([]protocol.IndexedEvent[protocol.TreeInsertion], error) {
	events := make([]protocol.IndexedEvent[protocol.TreeInsertion], 0, len(logs))
	for _, log := range logs {
		messageID, index, err := i.binding.UnpackInsertedIntoTree(log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrProtocolDecode, err)
		}
		events = append(events, protocol.IndexedEvent[protocol.TreeInsertion]{
			Event: protocol.TreeInsertion{LeafIndex: index, MessageID: messageID},
			Meta:  logMeta(log),
		})
	}
	return events, nil
}

func sortInsertions(events []protocol.IndexedEvent[protocol.TreeInsertion]) {
	sort.Slice(events, func(a, b int) bool {
		return events[a].Event.LeafIndex < events[b].Event.LeafIndex
	})
}
