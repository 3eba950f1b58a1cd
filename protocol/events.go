package protocol

import "fmt"

// LogMeta is the provenance of a decoded log entry, carried separately from
// the payload.
type LogMeta struct {
	TxHash      Bytes32 `json:"tx_hash"`
	BlockNumber uint64  `json:"block_number"`
	LogIndex    uint    `json:"log_index"`
}

// IndexedEvent pairs a decoded protocol event with its provenance.
type IndexedEvent[T any] struct {
	Event T
	Meta  LogMeta
}

// Delivery is a message-delivery confirmation observed on the destination
// mailbox. It carries no intrinsic sequence number.
type Delivery struct {
	MessageID Bytes32 `json:"message_id"`
}

// TreeInsertion records a message leaf inserted into the merkle tree hook.
type TreeInsertion struct {
	LeafIndex uint32  `json:"leaf_index"`
	MessageID Bytes32 `json:"message_id"`
}

func (i TreeInsertion) String() string {
	return fmt.Sprintf("TreeInsertion{leaf: %d, message: %s}", i.LeafIndex, i.MessageID)
}

// SequencePosition is the result of a sequence-and-tip read. Count is nil
// when the indexed event type has no intrinsic sequence counter; callers
// must treat nil as "use log order", never as zero.
type SequencePosition struct {
	Count *uint32
	Tip   uint64
}
