package protocol

import (
	"context"
	"math/big"
)

// Indexer turns a ledger's append-only event log into an ordered sequence of
// protocol events of one type.
type Indexer[T any] interface {
	// FetchInRange returns all events whose provenance lies within the
	// inclusive block range [start, end]. A range with start > end is a
	// caller error, rejected before any network call. Depending on the
	// provider, the result may contain duplicates; deduplication is the
	// caller's responsibility.
	FetchInRange(ctx context.Context, start, end uint64) ([]IndexedEvent[T], error)

	// FetchByTransaction returns the events emitted by a single transaction.
	// Transient transport failures are retried indefinitely: a known
	// transaction's logs are assumed always eventually retrievable.
	FetchByTransaction(ctx context.Context, txHash Bytes32) ([]IndexedEvent[T], error)

	// FinalizedBlockNumber returns the latest block the ledger considers
	// irreversible.
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
}

// SequenceAwareIndexer is an Indexer that can also report the total known
// sequence count at the finalized tip.
type SequenceAwareIndexer[T any] interface {
	Indexer[T]

	// LatestSequenceAndTip reads the finalized tip, then the sequence
	// counter as of that exact block height. Event types without an
	// intrinsic counter report a nil count.
	LatestSequenceAndTip(ctx context.Context) (SequencePosition, error)
}

// TxOutcome describes a submitted transaction. It is only ever produced
// after the containing block has been confirmed finalized.
type TxOutcome struct {
	TxHash      Bytes32
	BlockNumber uint64
	GasUsed     *big.Int
	Success     bool
}

// TxCostEstimate is the result of a delivery cost estimation.
type TxCostEstimate struct {
	GasLimit *big.Int
	GasPrice *big.Int
	// SecondaryGasLimit isolates execution-layer gas on rollup chains whose
	// primary estimate mixes base-layer and execution-layer costs. Absent on
	// all other chains.
	SecondaryGasLimit *big.Int
}

// DeliveryOperation is a pending message delivery plus its submission data.
// Produced by an upstream queue and consumed read-only by the adapter.
type DeliveryOperation struct {
	Message  *Message
	Metadata []byte
	GasLimit *big.Int
}

// BatchResult is the structured outcome of a batch delivery attempt.
// ExcludedIndices lists positions in the original operation list that were
// left out of the aggregate, either because simulation flagged them or
// because too few operations survived to make aggregation worthwhile.
type BatchResult struct {
	Outcome         *TxOutcome
	ExcludedIndices []int
}

// FailedBatchResult marks a whole batch of n operations as excluded.
func FailedBatchResult(n int) BatchResult {
	excluded := make([]int, n)
	for i := range excluded {
		excluded[i] = i
	}
	return BatchResult{ExcludedIndices: excluded}
}

// Checkpoint is a (root, index) commitment read from the merkle tree hook.
type Checkpoint struct {
	MerkleTreeHookAddress Bytes32
	Domain                Domain
	Root                  Bytes32
	Index                 uint32
}

// Mailbox is the onchain contract that accepts message-delivery calls and
// tracks delivered message ids.
type Mailbox interface {
	// Count returns the number of dispatched messages as of the finalized tip.
	Count(ctx context.Context) (uint32, error)

	// Delivered reports whether the message id has been delivered.
	Delivered(ctx context.Context, id Bytes32) (bool, error)

	// DefaultISM returns the mailbox's default verification module address.
	DefaultISM(ctx context.Context) (Bytes32, error)

	// RecipientISM returns the verification module address configured by a
	// recipient, falling back to the default onchain.
	RecipientISM(ctx context.Context, recipient Bytes32) (Bytes32, error)

	// Process delivers a single message and blocks until the containing
	// block is finalized.
	Process(ctx context.Context, message *Message, metadata []byte, gasLimit *big.Int) (TxOutcome, error)

	// TryProcessBatch simulates the operations as one aggregate, submits the
	// profitable subset, and reports the excluded indices. A transport
	// failure of the simulation probe itself is an error, never "all
	// excluded".
	TryProcessBatch(ctx context.Context, ops []DeliveryOperation) (BatchResult, error)

	// ProcessEstimateCosts estimates the gas cost of delivering one message.
	ProcessEstimateCosts(ctx context.Context, message *Message, metadata []byte) (TxCostEstimate, error)

	// ProcessCalldata returns the raw calldata of a delivery call. No I/O.
	ProcessCalldata(message *Message, metadata []byte) []byte
}

// MerkleTreeHook is the onchain incremental merkle accumulator recording
// every dispatched message as a leaf. Reads accept an optional lag (in
// blocks) behind the finalized tip; nil reads at the tip itself.
type MerkleTreeHook interface {
	Tree(ctx context.Context, lag *uint64) (*IncrementalMerkle, error)
	Count(ctx context.Context, lag *uint64) (uint32, error)
	LatestCheckpoint(ctx context.Context, lag *uint64) (Checkpoint, error)
}
